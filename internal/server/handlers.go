package server

import (
	"errors"
	"net/http"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/gin-gonic/gin"
)

// processRequest は POST /process-comic-script の入力です。省略された項目は既定値になるのだ。
type processRequest struct {
	Script      string  `json:"script"`
	PanelCount  *int    `json:"panel_count"`
	Style       *string `json:"style"`
	AspectRatio *string `json:"aspect_ratio"`
}

type processResponse struct {
	Panels domain.Panels `json:"panels"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStyles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"styles": s.presets.List()})
}

func (s *Server) handleProcessScript(c *gin.Context) {
	if s.opts.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxBodyBytes)
	}

	var body processRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	req, err := body.toDomain()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := s.gen.Generate(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, processResponse{Panels: res.Panels})
}

func (r processRequest) toDomain() (domain.GenerationRequest, error) {
	cfg := domain.DefaultGenerationConfig()
	if r.PanelCount != nil {
		cfg.PanelCount = *r.PanelCount
	}
	if r.Style != nil {
		style, err := domain.ParseStyle(*r.Style)
		if err != nil {
			return domain.GenerationRequest{}, err
		}
		cfg.Style = style
	}
	if r.AspectRatio != nil {
		aspect, err := domain.ParseAspectRatio(*r.AspectRatio)
		if err != nil {
			return domain.GenerationRequest{}, err
		}
		cfg.AspectRatio = aspect
	}

	req := domain.GenerationRequest{Script: r.Script, Config: cfg}
	if err := req.Validate(); err != nil {
		return domain.GenerationRequest{}, err
	}
	return req, nil
}

// statusFor はエラー分類を HTTP ステータスに対応させるのだ。タイムアウトはサービスエラーより先に判定します。
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMalformedGenerationOutput), errors.Is(err, domain.ErrSceneCountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrUpstreamService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

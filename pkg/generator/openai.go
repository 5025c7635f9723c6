package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/go-http-kit/httpkit"
)

// OpenAIClient は OpenAI 互換の chat completions / images generations API を呼び出すのだ。
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	textModel   string
	imageModel  string
	temperature float32
	httpClient  httpkit.Requester
}

// NewOpenAIClient は OpenAI 互換クライアントを作成します。
// httpClient が nil ならリトライなしの httpkit クライアントを使います。タイムアウトは呼び出し側が ctx で与える前提なのだ。
func NewOpenAIClient(apiKey, baseURL, textModel, imageModel string, temperature float32, httpClient httpkit.Requester) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY が設定されていないのだ")
	}
	if httpClient == nil {
		httpClient = httpkit.New(0, httpkit.WithMaxRetries(0))
	}
	return &OpenAIClient{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		textModel:   textModel,
		imageModel:  imageModel,
		temperature: temperature,
		httpClient:  httpClient,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL     string `json:"url"`
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// StatusError は 4xx など、送り直しても結果が変わらない応答なのだ。5xx は通常のエラーとして返ります。
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// GenerateText は chat completions を1回呼び出し、最初の choice の content を返します。
func (c *OpenAIClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	body := chatRequest{
		Model:       c.textModel,
		Temperature: c.temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.User})
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := c.post(ctx, "/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completions returned no choices (model: %s)", c.textModel)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage は images generations で1枚だけ生成し、期限付き URL を返すのだ。
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	size := req.Size
	if size == "" {
		size = "1024x1024"
	}
	body := imageRequest{
		Model:  c.imageModel,
		Prompt: req.Prompt,
		N:      1,
		Size:   size,
	}

	var resp imageResponse
	if err := c.post(ctx, "/images/generations", body, &resp); err != nil {
		return ImageResult{}, err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return ImageResult{}, fmt.Errorf("images generations returned no url (model: %s)", c.imageModel)
	}
	return ImageResult{URL: resp.Data[0].URL, MimeType: "image/png"}, nil
}

// post は Authorization ヘッダー付きで JSON を POST し、応答を out にデコードします。
// 送信と状態コードの判定は httpkit に任せ、4xx は StatusError に変換するのだ。
func (c *OpenAIClient) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	respBody, err := c.httpClient.DoRequest(httpReq)
	if err != nil {
		if nre, ok := errors.AsType[*httpkit.NonRetryableHTTPError](err); ok {
			return &StatusError{Endpoint: endpoint, StatusCode: nre.StatusCode, Body: strings.TrimSpace(string(nre.Body))}
		}
		return fmt.Errorf("request to %s failed: %w", endpoint, withContextError(ctx, err))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

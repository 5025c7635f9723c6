package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Style は画像生成に使う画風の列挙なのだ。
type Style string

const (
	StyleManga      Style = "manga"
	StyleFuturistic Style = "futuristic"
	StyleRealistic  Style = "realistic"
	StyleSuperhero  Style = "superhero"
)

// AspectRatio はパネル画像の縦横比なのだ。
type AspectRatio string

const (
	AspectSquare    AspectRatio = "square"
	AspectLandscape AspectRatio = "landscape"
	AspectPortrait  AspectRatio = "portrait"
)

const (
	// DefaultPanelCount は UI の初期値と同じなのだ。
	DefaultPanelCount = 3
	// MaxPanelCount は1回の生成で扱えるパネル数の上限です。
	MaxPanelCount = 10
	DefaultStyle  = StyleManga
	DefaultAspect = AspectSquare
)

// Styles はサポートしている画風を表示順で返します。
func Styles() []Style {
	return []Style{StyleManga, StyleFuturistic, StyleRealistic, StyleSuperhero}
}

// ParseStyle は文字列を Style に変換します。空文字はデフォルト扱いなのだ。
func ParseStyle(s string) (Style, error) {
	v := Style(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return DefaultStyle, nil
	}
	if !slices.Contains(Styles(), v) {
		return "", fmt.Errorf("%w: unsupported style %q", ErrInvalidRequest, s)
	}
	return v, nil
}

// ParseAspectRatio は文字列を AspectRatio に変換します。
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch v := AspectRatio(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return DefaultAspect, nil
	case AspectSquare, AspectLandscape, AspectPortrait:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidRequest, s)
	}
}

// Ratio は画像生成APIに渡す比率表記 ("1:1" 等) を返すのだ。
func (a AspectRatio) Ratio() string {
	switch a {
	case AspectLandscape:
		return "16:9"
	case AspectPortrait:
		return "9:16"
	default:
		return "1:1"
	}
}

// Size は URL を返すタイプの画像APIで使うピクセルサイズなのだ。
func (a AspectRatio) Size() string {
	switch a {
	case AspectLandscape:
		return "1792x1024"
	case AspectPortrait:
		return "1024x1792"
	default:
		return "1024x1024"
	}
}

// GenerationConfig は1回のパイプライン実行中は変更されない生成パラメータです。
type GenerationConfig struct {
	PanelCount  int         `json:"panel_count"`
	Style       Style       `json:"style"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
}

// DefaultGenerationConfig は UI の初期状態と同じ設定を返すのだ。
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		PanelCount:  DefaultPanelCount,
		Style:       DefaultStyle,
		AspectRatio: DefaultAspect,
	}
}

// Validate は設定値が列挙と範囲に収まっているかを確認します。
func (c GenerationConfig) Validate() error {
	if c.PanelCount < 1 || c.PanelCount > MaxPanelCount {
		return fmt.Errorf("%w: panel_count must be between 1 and %d (got %d)", ErrInvalidRequest, MaxPanelCount, c.PanelCount)
	}
	if _, err := ParseStyle(string(c.Style)); err != nil || c.Style == "" {
		return fmt.Errorf("%w: unsupported style %q", ErrInvalidRequest, c.Style)
	}
	if _, err := ParseAspectRatio(string(c.AspectRatio)); err != nil || c.AspectRatio == "" {
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidRequest, c.AspectRatio)
	}
	return nil
}

// GenerationRequest はパイプライン1回分の入力です。Script はこのリクエストの間だけ存在します。
type GenerationRequest struct {
	Script string
	Config GenerationConfig
}

// Validate は台本が空でないことと設定の妥当性を確認するのだ。
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Script) == "" {
		return fmt.Errorf("%w: script must not be empty", ErrInvalidRequest)
	}
	return r.Config.Validate()
}

// GenerationResult はパイプラインの成功結果です。Panels は常に SequenceNumber 順なのだ。
type GenerationResult struct {
	Panels Panels `json:"panels"`
}

// Scene は台本から切り出された1コマ分の物語単位です。
type Scene struct {
	Description string   `json:"description"`
	Characters  []string `json:"characters"`
	Dialogues   []string `json:"dialogues"`
}

// TextContent はセリフ行を順番どおり改行で連結して返すのだ。
func (s Scene) TextContent() string {
	return strings.Join(s.Dialogues, "\n")
}

// Clone はスライスを共有しないコピーを返します。
func (s Scene) Clone() Scene {
	return Scene{
		Description: s.Description,
		Characters:  slices.Clone(s.Characters),
		Dialogues:   slices.Clone(s.Dialogues),
	}
}

// Visibility は漫画の公開範囲なのだ。
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Comic は保存される漫画の単位です。パイプラインは Comic を書き込みません。
type Comic struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Visibility  Visibility `json:"visibility"`
	Panels      Panels     `json:"panels"`
}

// IsPublic は公開設定かどうかを返すのだ。
func (c Comic) IsPublic() bool {
	return c.Visibility == VisibilityPublic
}

// Validate は保存前のチェックです。タイトル必須、パネル1枚以上、連番であること。
func (c Comic) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	switch c.Visibility {
	case VisibilityPublic, VisibilityPrivate:
	default:
		return fmt.Errorf("%w: unknown visibility %q", ErrInvalidRequest, c.Visibility)
	}
	if len(c.Panels) == 0 {
		return fmt.Errorf("%w: at least one panel is required", ErrInvalidRequest)
	}
	return c.Panels.Validate()
}

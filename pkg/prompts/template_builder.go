package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

var (
	//go:embed scene_system.md
	SceneSystemPrompt string
	//go:embed image_panel.md
	ImagePanelPrompt string
)

// sceneTemplateData はシーン抽出プロンプトのテンプレートに渡すデータ構造です。
type sceneTemplateData struct {
	PanelCount int
	Style      domain.Style
}

// imageTemplateData はパネル画像プロンプトのテンプレートに渡すデータ構造です。
type imageTemplateData struct {
	Description string
	Characters  string
	Style       domain.Style
	StyleDNA    string
	Framing     string
}

// ScenePrompt はシーン抽出用のプロンプトを組み立てる契約です。
type ScenePrompt interface {
	// BuildScene は、テキスト生成サービスに渡す system と user のプロンプトを返します。
	BuildScene(script string, cfg domain.GenerationConfig) (system string, user string, err error)
}

// ImagePrompt はパネル画像用のプロンプトを組み立てる契約です。
type ImagePrompt interface {
	BuildPanel(scene domain.Scene, cfg domain.GenerationConfig) (string, error)
}

// TemplatePromptBuilder は埋め込みテンプレートと画風プリセットからプロンプトを構築します。
type TemplatePromptBuilder struct {
	scene   *template.Template
	image   *template.Template
	presets StylePresets
}

// NewTemplatePromptBuilder は TemplatePromptBuilder を初期化します。presets が nil なら埋め込みのものを使うのだ。
func NewTemplatePromptBuilder(presets StylePresets) (*TemplatePromptBuilder, error) {
	if presets == nil {
		var err error
		presets, err = DefaultStylePresets()
		if err != nil {
			return nil, err
		}
	}

	templates := map[string]string{
		"scene": SceneSystemPrompt,
		"image": ImagePanelPrompt,
	}
	parsed := make(map[string]*template.Template, len(templates))
	for name, content := range templates {
		if content == "" {
			return nil, fmt.Errorf("プロンプトテンプレート '%s' (go:embed) の読み込みに失敗しました: 内容が空です", name)
		}
		tmpl, err := template.New(name).Parse(content)
		if err != nil {
			return nil, fmt.Errorf("プロンプト '%s' の解析に失敗: %w", name, err)
		}
		parsed[name] = tmpl
	}

	return &TemplatePromptBuilder{
		scene:   parsed["scene"],
		image:   parsed["image"],
		presets: presets,
	}, nil
}

// BuildScene は台本をそのまま user に、出力契約を system に入れるのだ。
func (b *TemplatePromptBuilder) BuildScene(script string, cfg domain.GenerationConfig) (string, string, error) {
	system, err := execute(b.scene, sceneTemplateData{PanelCount: cfg.PanelCount, Style: cfg.Style})
	if err != nil {
		return "", "", err
	}
	return system, script, nil
}

// BuildPanel はシーンの描写、登場人物、画風を1つの画像プロンプトにまとめます。
func (b *TemplatePromptBuilder) BuildPanel(scene domain.Scene, cfg domain.GenerationConfig) (string, error) {
	var chars []string
	for _, c := range scene.Characters {
		if s := strings.TrimSpace(c); s != "" {
			chars = append(chars, s)
		}
	}

	data := imageTemplateData{
		Description: strings.TrimSuffix(strings.TrimSpace(scene.Description), "."),
		Characters:  strings.Join(chars, ", "),
		Style:       cfg.Style,
		StyleDNA:    b.presets.Prompt(cfg.Style),
		Framing:     framing(cfg.AspectRatio),
	}
	return execute(b.image, data)
}

// Presets は使用中の画風プリセットを返すのだ。
func (b *TemplatePromptBuilder) Presets() StylePresets {
	return b.presets
}

func framing(a domain.AspectRatio) string {
	switch a {
	case domain.AspectLandscape:
		return "wide landscape"
	case domain.AspectPortrait:
		return "tall portrait"
	default:
		return "square"
	}
}

func execute(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("プロンプトテンプレートの実行に失敗しました: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

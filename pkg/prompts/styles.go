package prompts

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/shouni/go-comic-kit/pkg/domain"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var defaultStylesYAML []byte

// StylePreset は1つの画風に対応する表示名とプロンプト断片です。
type StylePreset struct {
	Name   domain.Style `yaml:"name" json:"name"`
	Label  string       `yaml:"label" json:"label"`
	Prompt string       `yaml:"prompt" json:"prompt"`
}

// StylePresets は画風名をキーにしたプリセット表なのだ。
type StylePresets map[domain.Style]StylePreset

type stylesFile struct {
	Styles []StylePreset `yaml:"styles"`
}

// DefaultStylePresets は埋め込みの styles.yaml を読み込みます。
func DefaultStylePresets() (StylePresets, error) {
	return ParseStylePresets(defaultStylesYAML)
}

// LoadStylePresets はファイルからプリセットを読み込むのだ。path が空なら埋め込みのものを返します。
func LoadStylePresets(path string) (StylePresets, error) {
	if path == "" {
		return DefaultStylePresets()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("画風プリセットの読み込みに失敗したのだ: %w", err)
	}
	return ParseStylePresets(data)
}

// ParseStylePresets は YAML をパースし、サポート外の画風や欠けている画風をエラーにします。
func ParseStylePresets(data []byte) (StylePresets, error) {
	var f stylesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("画風プリセットのデコードに失敗したのだ: %w", err)
	}

	presets := make(StylePresets, len(f.Styles))
	for _, p := range f.Styles {
		style, err := domain.ParseStyle(string(p.Name))
		if err != nil || p.Name == "" {
			return nil, fmt.Errorf("画風プリセットに不明な名前 %q が含まれています", p.Name)
		}
		p.Name = style
		if p.Label == "" {
			p.Label = string(style)
		}
		presets[style] = p
	}

	for _, s := range domain.Styles() {
		if _, ok := presets[s]; !ok {
			return nil, fmt.Errorf("画風 %q のプリセットがありません", s)
		}
	}
	return presets, nil
}

// Prompt は画風のプロンプト断片を返します。未登録なら空文字なのだ。
func (sp StylePresets) Prompt(s domain.Style) string {
	return sp[s].Prompt
}

// List はプリセットを domain.Styles() の順で返すのだ。
func (sp StylePresets) List() []StylePreset {
	out := make([]StylePreset, 0, len(sp))
	for _, s := range domain.Styles() {
		if p, ok := sp[s]; ok {
			out = append(out, p)
		}
	}
	return out
}

package publisher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shouni/go-comic-kit/pkg/domain"
)

const narrationSpeaker = "narration"

// Dialogue は "Name: text" 形式のセリフ行を分解したものなのだ。
type Dialogue struct {
	Speaker string
	Text    string
	Type    string // normal / shout / thought
}

// MarkdownPublisher は、生成結果を構造化された Markdown 形式で出力する役割を担います。
type MarkdownPublisher struct{}

func NewMarkdownPublisher() *MarkdownPublisher {
	return &MarkdownPublisher{}
}

// Build は、タイトルとパネル列を1つの Markdown 文書にまとめます。
// パネルは SequenceNumber の順に並んでいる前提なのだ。
func (mp *MarkdownPublisher) Build(title string, panels domain.Panels) string {
	var sb strings.Builder

	if title = strings.TrimSpace(title); title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", title)
	}

	for _, p := range panels {
		fmt.Fprintf(&sb, "## Panel %d\n\n", p.SequenceNumber)
		fmt.Fprintf(&sb, "![panel %d](%s)\n\n", p.SequenceNumber, p.ImageURL)
		if p.Description != "" {
			fmt.Fprintf(&sb, "> %s\n\n", strings.TrimSpace(p.Description))
		}

		lines := p.Dialogues
		if len(lines) == 0 && p.TextContent != "" {
			lines = strings.Split(p.TextContent, "\n")
		}
		if len(lines) == 0 {
			sb.WriteString("- type: none\n\n")
			continue
		}
		for _, line := range lines {
			d := ParseDialogue(line)
			if d.Text == "" {
				continue
			}
			fmt.Fprintf(&sb, "- speaker: %s (%s)\n", d.Speaker, SpeakerID(d.Speaker))
			fmt.Fprintf(&sb, "  - text: %s\n", d.Text)
			if d.Type != "normal" {
				fmt.Fprintf(&sb, "  - type: %s\n", d.Type)
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// ParseDialogue は "Hero: Stop right there!" を話者とセリフに分けます。
// 話者がない行はナレーション扱いなのだ。
func ParseDialogue(line string) Dialogue {
	line = strings.TrimSpace(line)
	speaker := narrationSpeaker
	text := line
	if name, rest, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(name) != "" && !strings.ContainsAny(name, "[]") {
		speaker = strings.TrimSpace(name)
		text = strings.TrimSpace(rest)
	}

	typ := dialogueType(text)
	text = strings.TrimSpace(strings.NewReplacer("[shout]", "", "[thought]", "").Replace(text))
	return Dialogue{Speaker: speaker, Text: text, Type: typ}
}

// SpeakerID は話者名から CSS 安全なハッシュ ID を生成します。
func SpeakerID(name string) string {
	if name == "" || name == narrationSpeaker {
		return "speaker-narration"
	}
	h := sha256.New()
	h.Write([]byte(strings.ToLower(name)))
	return "speaker-" + hex.EncodeToString(h.Sum(nil))[:10]
}

// dialogueType はセリフに含まれるメタタグから吹き出しの種類を判定します。
func dialogueType(text string) string {
	switch {
	case strings.Contains(text, "[shout]"):
		return "shout"
	case strings.Contains(text, "[thought]"):
		return "thought"
	default:
		return "normal"
	}
}

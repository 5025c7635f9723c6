package domain

import (
	"fmt"
	"slices"
)

// Panel は漫画の1コマ（画像＋テキスト）なのだ。
type Panel struct {
	SequenceNumber int      `json:"sequence_number"`
	ImageURL       string   `json:"image_url"`
	TextContent    string   `json:"text_content"`
	Description    string   `json:"description"`
	Characters     []string `json:"characters"`
	Dialogues      []string `json:"dialogues"`

	// ObjectKey はストレージ上のキー。失敗時の後片付けにだけ使うのだ。
	ObjectKey string `json:"-"`
}

// NewPanelFromScene は Scene と永続化済みの画像から Panel を組み立てます。
// index は 0 始まりで、SequenceNumber は index+1 になるのだ。
// characters / dialogues は空でも JSON で [] になるよう、nil を空スライスにそろえます。
func NewPanelFromScene(scene Scene, index int, imageURL, objectKey string) Panel {
	s := scene.Clone()
	if s.Characters == nil {
		s.Characters = []string{}
	}
	if s.Dialogues == nil {
		s.Dialogues = []string{}
	}
	return Panel{
		SequenceNumber: index + 1,
		ImageURL:       imageURL,
		TextContent:    s.TextContent(),
		Description:    s.Description,
		Characters:     s.Characters,
		Dialogues:      s.Dialogues,
		ObjectKey:      objectKey,
	}
}

// Direction はパネル移動の向きです。
type Direction int

const (
	Up Direction = iota
	Down
)

// Panels は SequenceNumber 順に並んだパネル列です。
// ここにあるメソッドはすべて新しいスライスを返し、レシーバーは変更しないのだ。
type Panels []Panel

// Clone はパネル列のコピーを返します。
func (ps Panels) Clone() Panels {
	out := make(Panels, len(ps))
	for i, p := range ps {
		p.Characters = slices.Clone(p.Characters)
		p.Dialogues = slices.Clone(p.Dialogues)
		out[i] = p
	}
	return out
}

// Renumber は並び順どおりに 1 から連番を振り直すのだ。
func (ps Panels) Renumber() Panels {
	out := ps.Clone()
	for i := range out {
		out[i].SequenceNumber = i + 1
	}
	return out
}

// Append は末尾に p を追加し、連番を振り直した列を返します。
func (ps Panels) Append(p Panel) Panels {
	return append(ps.Clone(), p).Renumber()
}

// Remove は index のパネルを取り除き、残りを詰めて連番にします。
func (ps Panels) Remove(index int) (Panels, error) {
	if err := ps.checkIndex(index); err != nil {
		return nil, err
	}
	out := slices.Delete(ps.Clone(), index, index+1)
	return out.Renumber(), nil
}

// Move は index のパネルを隣と入れ替えます。端での移動は何もしないのだ。
func (ps Panels) Move(index int, dir Direction) (Panels, error) {
	if err := ps.checkIndex(index); err != nil {
		return nil, err
	}
	target := index - 1
	if dir == Down {
		target = index + 1
	}
	out := ps.Clone()
	if target < 0 || target >= len(out) {
		return out, nil
	}
	out[index], out[target] = out[target], out[index]
	return out.Renumber(), nil
}

// EditText は index のパネルのテキストだけを書き換えます。
func (ps Panels) EditText(index int, text string) (Panels, error) {
	if err := ps.checkIndex(index); err != nil {
		return nil, err
	}
	out := ps.Clone()
	out[index].TextContent = text
	return out, nil
}

// ReplaceImage は手動アップロードなどで画像を差し替えるのだ。
func (ps Panels) ReplaceImage(index int, imageURL string) (Panels, error) {
	if err := ps.checkIndex(index); err != nil {
		return nil, err
	}
	out := ps.Clone()
	out[index].ImageURL = imageURL
	out[index].ObjectKey = ""
	return out, nil
}

// Validate は SequenceNumber が 1..n の連番になっているかを確認します。
func (ps Panels) Validate() error {
	for i, p := range ps {
		if p.SequenceNumber != i+1 {
			return fmt.Errorf("%w: panel at position %d has sequence_number %d", ErrInvalidRequest, i+1, p.SequenceNumber)
		}
	}
	return nil
}

// ObjectKeys は永続化済み画像のキーを集めるのだ。
func (ps Panels) ObjectKeys() []string {
	keys := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.ObjectKey != "" {
			keys = append(keys, p.ObjectKey)
		}
	}
	return keys
}

func (ps Panels) checkIndex(index int) error {
	if index < 0 || index >= len(ps) {
		return fmt.Errorf("%w: panel index %d out of range (len %d)", ErrInvalidRequest, index, len(ps))
	}
	return nil
}

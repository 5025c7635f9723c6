package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePanels() Panels {
	return Panels{
		{SequenceNumber: 1, ImageURL: "a.png", TextContent: "A"},
		{SequenceNumber: 2, ImageURL: "b.png", TextContent: "B"},
		{SequenceNumber: 3, ImageURL: "c.png", TextContent: "C"},
	}
}

func TestScene_TextContent(t *testing.T) {
	scene := Scene{Dialogues: []string{"Hero: Stop right there!", "Villain: Never."}}
	assert.Equal(t, "Hero: Stop right there!\nVillain: Never.", scene.TextContent(), "セリフは順番どおり改行で連結されるのだ")

	assert.Equal(t, "", Scene{}.TextContent())
}

func TestNewPanelFromScene(t *testing.T) {
	scene := Scene{
		Description: "A hero confronts a villain downtown",
		Characters:  []string{"Hero", "Villain"},
		Dialogues:   []string{"Hero: Stop right there!", "Villain: Never."},
	}

	p := NewPanelFromScene(scene, 0, "https://cdn.example/x.png", "panels/x.png")

	assert.Equal(t, 1, p.SequenceNumber)
	assert.Equal(t, "Hero: Stop right there!\nVillain: Never.", p.TextContent)
	assert.Equal(t, "panels/x.png", p.ObjectKey)

	// 元の Scene を書き換えてもパネルに影響しないこと
	scene.Characters[0] = "Changed"
	assert.Equal(t, "Hero", p.Characters[0])
}

func TestNewPanelFromScene_EmptyListsStayInJSON(t *testing.T) {
	for name, scene := range map[string]Scene{
		"空スライス": {Description: "Empty street", Characters: []string{}, Dialogues: []string{}},
		"nil":   {Description: "Empty street"},
	} {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(NewPanelFromScene(scene, 0, "u", "k"))
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(data, &got))
			for _, key := range []string{"description", "characters", "dialogues", "image_url", "sequence_number", "text_content"} {
				assert.Contains(t, got, key)
			}
			assert.Equal(t, []any{}, got["characters"])
			assert.Equal(t, []any{}, got["dialogues"])
			assert.NotContains(t, got, "ObjectKey")
		})
	}
}

func TestPanels_Remove(t *testing.T) {
	orig := samplePanels()

	out, err := orig.Remove(1)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].TextContent)
	assert.Equal(t, "C", out[1].TextContent)
	assert.Equal(t, 2, out[1].SequenceNumber, "削除後は1から連番に振り直されるのだ")
	require.NoError(t, out.Validate())

	assert.Len(t, orig, 3, "元のスライスは変更されないのだ")
	assert.Equal(t, "B", orig[1].TextContent)

	_, err = orig.Remove(3)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestPanels_Move(t *testing.T) {
	orig := samplePanels()

	t.Run("上に移動すると入れ替わって連番が維持されるのだ", func(t *testing.T) {
		out, err := orig.Move(2, Up)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "C", "B"}, texts(out))
		require.NoError(t, out.Validate())
		assert.Equal(t, []string{"A", "B", "C"}, texts(orig))
	})

	t.Run("端での移動は何もしないのだ", func(t *testing.T) {
		out, err := orig.Move(0, Up)
		require.NoError(t, err)
		assert.Equal(t, texts(orig), texts(out))

		out, err = orig.Move(2, Down)
		require.NoError(t, err)
		assert.Equal(t, texts(orig), texts(out))
	})

	t.Run("範囲外のインデックスはエラーなのだ", func(t *testing.T) {
		_, err := orig.Move(-1, Down)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestPanels_EditAndAppend(t *testing.T) {
	orig := samplePanels()

	edited, err := orig.EditText(0, "new text")
	require.NoError(t, err)
	assert.Equal(t, "new text", edited[0].TextContent)
	assert.Equal(t, "A", orig[0].TextContent)

	replaced, err := orig.ReplaceImage(1, "manual.png")
	require.NoError(t, err)
	assert.Equal(t, "manual.png", replaced[1].ImageURL)

	appended := orig.Append(Panel{})
	require.Len(t, appended, 4)
	assert.Equal(t, 4, appended[3].SequenceNumber)
}

func TestPanels_Validate(t *testing.T) {
	bad := Panels{{SequenceNumber: 1}, {SequenceNumber: 3}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidRequest)
	assert.NoError(t, bad.Renumber().Validate())
}

func TestPanels_ObjectKeys(t *testing.T) {
	ps := Panels{{ObjectKey: "a"}, {}, {ObjectKey: "c"}}
	assert.Equal(t, []string{"a", "c"}, ps.ObjectKeys())
}

func texts(ps Panels) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.TextContent
	}
	return out
}

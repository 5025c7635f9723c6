package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImagenModel(t *testing.T) {
	assert.True(t, IsImagenModel("imagen-4.0-generate-001"))
	assert.True(t, IsImagenModel("Imagen-3.0-fast"))
	assert.False(t, IsImagenModel("gemini-3-pro-image-preview"))
	assert.False(t, IsImagenModel(""))
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiOptions{TextModel: "gemini-2.5-flash"})
	assert.Error(t, err)
}

func TestNewGeminiClient_RejectsInvalidTemperature(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiOptions{APIKey: "test-key", Temperature: 3})
	assert.Error(t, err, "温度は go-gemini-client 側で 0.0〜2.0 に制限されるのだ")
}

func TestNewGeminiClient(t *testing.T) {
	c, err := NewGeminiClient(context.Background(), GeminiOptions{
		APIKey:      "test-key",
		TextModel:   "gemini-2.5-flash",
		ImageModel:  "gemini-3-pro-image-preview",
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.NotNil(t, c.panels)
	assert.Equal(t, "gemini-2.5-flash", c.textModel)
}

func TestNoReferenceReader(t *testing.T) {
	_, err := noReferenceReader{}.Open(context.Background(), "gs://bucket/ref.png")
	assert.ErrorIs(t, err, errNoReferenceImages)
}

func TestWithContextError(t *testing.T) {
	base := errors.New("rpc error: code = Unavailable")

	assert.Same(t, base, withContextError(context.Background(), base))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	err := withContextError(ctx, base)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, base)
}

package extractor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const heroResponse = `{"scenes":[{"description":"A hero confronts a villain downtown","characters":["Hero","Villain"],"dialogues":["Hero: Stop right there!","Villain: Never."]}]}`

type stubText struct {
	reply string
	err   error
	delay time.Duration
	calls atomic.Int32
	last  generator.TextRequest
	mu    sync.Mutex
}

func (s *stubText) GenerateText(ctx context.Context, req generator.TextRequest) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.last = req
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.reply, s.err
}

func newExtractor(t *testing.T, tg generator.TextGenerator, opts Options) *Extractor {
	t.Helper()
	pb, err := prompts.NewTemplatePromptBuilder(nil)
	require.NoError(t, err)
	return New(tg, pb, opts)
}

func heroConfig() domain.GenerationConfig {
	return domain.GenerationConfig{PanelCount: 1, Style: domain.StyleSuperhero, AspectRatio: domain.AspectSquare}
}

func TestExtract_WellFormed(t *testing.T) {
	tg := &stubText{reply: heroResponse}
	e := newExtractor(t, tg, Options{})

	scenes, err := e.Extract(context.Background(), "A hero meets a villain in the city.", heroConfig())
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Equal(t, "A hero confronts a villain downtown", scenes[0].Description)
	assert.Equal(t, []string{"Hero", "Villain"}, scenes[0].Characters)
	assert.Equal(t, []string{"Hero: Stop right there!", "Villain: Never."}, scenes[0].Dialogues)

	assert.EqualValues(t, 1, tg.calls.Load(), "テキスト生成は1回だけ呼ばれるのだ")
	assert.True(t, tg.last.JSON)
	assert.Equal(t, "A hero meets a villain in the city.", tg.last.User)
	assert.Contains(t, tg.last.System, "exactly 1 scenes")
}

func TestParseScenes_Malformed(t *testing.T) {
	tests := map[string]string{
		"JSONではない":        "not json",
		"JSON文字列":         `"not json"`,
		"コードフェンス付き":       "```json\n" + heroResponse + "\n```",
		"scenes がない":      `{"panels":[]}`,
		"scenes が null":   `{"scenes":null}`,
		"scenes が配列でない":   `{"scenes":{"description":"x"}}`,
		"scenes が空":       `{"scenes":[]}`,
		"description がない": `{"scenes":[{"characters":[],"dialogues":[]}]}`,
		"characters の型違い": `{"scenes":[{"description":"x","characters":"Hero","dialogues":[]}]}`,
		"dialogues がない":   `{"scenes":[{"description":"x","characters":[]}]}`,
		"後ろに余計なデータ":       heroResponse + ` trailing`,
		"トップレベルが配列":       `[` + heroResponse + `]`,
		"空文字":             "",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenes(raw)
			assert.ErrorIs(t, err, domain.ErrMalformedGenerationOutput)
		})
	}
}

func TestParseScenes_EmptyListsAreValid(t *testing.T) {
	scenes, err := ParseScenes(`{"scenes":[{"description":"An empty street","characters":[],"dialogues":[]}]}` + "\n")
	require.NoError(t, err)
	require.Len(t, scenes, 1)
	assert.Empty(t, scenes[0].TextContent())
}

func TestExtract_UpstreamErrors(t *testing.T) {
	t.Run("サービスのエラーは UpstreamServiceError なのだ", func(t *testing.T) {
		e := newExtractor(t, &stubText{err: errors.New("500 internal")}, Options{})
		_, err := e.Extract(context.Background(), "script", heroConfig())
		assert.ErrorIs(t, err, domain.ErrUpstreamService)
	})

	t.Run("呼び出し単位のタイムアウトは UpstreamTimeout なのだ", func(t *testing.T) {
		e := newExtractor(t, &stubText{reply: heroResponse, delay: time.Second}, Options{Timeout: 20 * time.Millisecond})
		_, err := e.Extract(context.Background(), "script", heroConfig())
		assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	})

	t.Run("呼び出し元のキャンセルはそのまま返すのだ", func(t *testing.T) {
		e := newExtractor(t, &stubText{reply: heroResponse, delay: time.Second}, Options{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Extract(ctx, "script", heroConfig())
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, domain.ErrUpstreamTimeout)
	})
}

func TestExtract_Cache(t *testing.T) {
	tg := &stubText{reply: heroResponse}
	e := newExtractor(t, tg, Options{CacheTTL: time.Minute})
	ctx := context.Background()

	first, err := e.Extract(ctx, "script", heroConfig())
	require.NoError(t, err)
	first[0].Characters[0] = "Mutated"

	second, err := e.Extract(ctx, "script", heroConfig())
	require.NoError(t, err)
	assert.EqualValues(t, 1, tg.calls.Load(), "同じ入力はキャッシュから返すのだ")
	assert.Equal(t, "Hero", second[0].Characters[0], "キャッシュは呼び出し元の変更から守られるのだ")

	other := heroConfig()
	other.Style = domain.StyleManga
	_, err = e.Extract(ctx, "script", other)
	require.NoError(t, err)
	assert.EqualValues(t, 2, tg.calls.Load(), "画風が違えば別のキーなのだ")
}

func TestExtract_CacheSkipsFailures(t *testing.T) {
	tg := &stubText{reply: "not json"}
	e := newExtractor(t, tg, Options{CacheTTL: time.Minute})

	_, err := e.Extract(context.Background(), "script", heroConfig())
	require.ErrorIs(t, err, domain.ErrMalformedGenerationOutput)
	_, err = e.Extract(context.Background(), "script", heroConfig())
	require.ErrorIs(t, err, domain.ErrMalformedGenerationOutput)
	assert.EqualValues(t, 2, tg.calls.Load(), "失敗はキャッシュしないのだ")
}

func TestExtract_SingleflightCollapsesConcurrentCalls(t *testing.T) {
	tg := &stubText{reply: heroResponse, delay: 100 * time.Millisecond}
	e := newExtractor(t, tg, Options{CacheTTL: time.Minute})

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Extract(context.Background(), "script", heroConfig())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, tg.calls.Load())
}

func TestExtract_SharedCallSurvivesLeaderCancel(t *testing.T) {
	tg := &stubText{reply: heroResponse, delay: 150 * time.Millisecond}
	e := newExtractor(t, tg, Options{CacheTTL: time.Minute, Timeout: time.Second})

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := e.Extract(leaderCtx, "script", heroConfig())
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return tg.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		scenes []domain.Scene
		err    error
	}
	follower := make(chan result, 1)
	go func() {
		scenes, err := e.Extract(context.Background(), "script", heroConfig())
		follower <- result{scenes, err}
	}()

	cancelLeader()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	got := <-follower
	require.NoError(t, got.err, "先頭の呼び出し元がキャンセルしても、生きている呼び出し元は成功するのだ")
	require.Len(t, got.scenes, 1)
	assert.EqualValues(t, 1, tg.calls.Load())
}

func TestExtract_CachedPathClassifiesTimeout(t *testing.T) {
	e := newExtractor(t, &stubText{reply: heroResponse, delay: time.Second}, Options{CacheTTL: time.Minute, Timeout: 20 * time.Millisecond})

	_, err := e.Extract(context.Background(), "script", heroConfig())
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 10))
	assert.Equal(t, "abc...", truncateString("abcdef", 3))

	// "台" は3バイトなので、4バイト目で切るとルーンの途中になるのだ
	got := truncateString("台本台本", 4)
	assert.Equal(t, "台...", got)
	assert.True(t, utf8.ValidString(got))
}

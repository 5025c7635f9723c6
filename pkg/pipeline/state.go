package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// State はパイプライン1回分の進行状態なのだ。
type State int

const (
	StateIdle State = iota
	StateExtractingScenes
	StateRenderingPanels
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtractingScenes:
		return "extracting_scenes"
	case StateRenderingPanels:
		return "rendering_panels"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal は Completed か Failed のとき true を返します。
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// canTransition は許される遷移だけを true にするのだ。
func canTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateExtractingScenes
	case StateExtractingScenes:
		return to == StateRenderingPanels || to == StateFailed
	case StateRenderingPanels:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// StateObserver は状態遷移の通知を受け取ります。
type StateObserver interface {
	OnStateChange(ctx context.Context, runID string, from, to State)
}

// StateObserverFunc は関数を StateObserver として使うためのアダプターです。
type StateObserverFunc func(ctx context.Context, runID string, from, to State)

func (f StateObserverFunc) OnStateChange(ctx context.Context, runID string, from, to State) {
	f(ctx, runID, from, to)
}

// run は1回の呼び出しの状態を持ちます。呼び出しをまたいで共有はしないのだ。
type run struct {
	id       string
	mu       sync.Mutex
	state    State
	observer StateObserver
}

func newRun(id string, observer StateObserver) *run {
	return &run{id: id, state: StateIdle, observer: observer}
}

func (r *run) current() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// transition は不正な遷移を無視して false を返します。
func (r *run) transition(ctx context.Context, to State) bool {
	r.mu.Lock()
	from := r.state
	if !canTransition(from, to) {
		r.mu.Unlock()
		slog.WarnContext(ctx, "不正な状態遷移を無視したのだ", "run_id", r.id, "from", from.String(), "to", to.String())
		return false
	}
	r.state = to
	r.mu.Unlock()

	slog.DebugContext(ctx, "状態が遷移したのだ", "run_id", r.id, "from", from.String(), "to", to.String())
	if r.observer != nil {
		r.observer.OnStateChange(ctx, r.id, from, to)
	}
	return true
}

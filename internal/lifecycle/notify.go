package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Notice is a user-facing outcome, rendered by the presentation layer as a toast.
type Notice struct {
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Outcome Outcome   `json:"outcome"`
	At      time.Time `json:"at"`
}

// Notifier receives every user-facing outcome.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	lg := l.Logger
	if lg == nil {
		lg = slog.Default()
	}
	level := slog.LevelInfo
	if n.Outcome == OutcomeFailed || n.Outcome == OutcomeInvalid {
		level = slog.LevelWarn
	}
	lg.Log(ctx, level, n.Title, slog.String("message", n.Message), slog.String("outcome", string(n.Outcome)))
}

// Notifiers fans a notice out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notice) {
	for _, x := range ns {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// DefaultFeedSize is the number of notices a Feed keeps when created with size <= 0.
const DefaultFeedSize = 100

// Feed keeps the most recent notices for polling clients.
type Feed struct {
	mu    sync.Mutex
	size  int
	items []Notice
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{size: size}
}

func (f *Feed) Notify(_ context.Context, n Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if len(f.items) > f.size {
		f.items = append([]Notice(nil), f.items[len(f.items)-f.size:]...)
	}
}

// Recent returns up to limit notices, oldest first. limit <= 0 returns all.
func (f *Feed) Recent(limit int) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := f.items
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return append([]Notice(nil), items...)
}

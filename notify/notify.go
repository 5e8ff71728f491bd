// Package notify defines the user-facing side effects of the session client: transient
// notifications and navigation. A CLI logs them; a UI host supplies its own.
package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) { f(ctx, path) }

var (
	_ Notifier  = LogNotifier{}
	_ Navigator = (*LogNavigator)(nil)
)

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

func NewLogNotifier() LogNotifier {
	return LogNotifier{Logger: log.Logger}
}

func (n LogNotifier) Notify(_ context.Context, msg Notification) {
	var ev *zerolog.Event
	switch msg.Level {
	case LevelError:
		ev = n.Logger.Error()
	default:
		ev = n.Logger.Info()
	}
	ev.Str("notification", string(msg.Level)).Msg(msg.Message)
}

// LogNavigator records the last requested path. There is nowhere to route to in a
// headless client, so the path is logged and kept for inspection.
type LogNavigator struct {
	Logger zerolog.Logger

	mu   sync.RWMutex
	last string
}

func NewLogNavigator() *LogNavigator {
	return &LogNavigator{Logger: log.Logger}
}

func (n *LogNavigator) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	n.last = path
	n.mu.Unlock()
	n.Logger.Debug().Str("path", path).Msg("Navigate")
}

func (n *LogNavigator) Last() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.last
}

// Recorder is an in-memory Notifier and Navigator.
type Recorder struct {
	mu            sync.RWMutex
	notifications []Notification
	paths         []string
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *Recorder) Navigate(_ context.Context, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *Recorder) Notifications() []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Notification(nil), r.notifications...)
}

func (r *Recorder) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.paths...)
}

// Package notify is the local-notification collaborator used for missed calls.
package notify

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const (
	DefaultTitle = "Missed Call"
	DefaultBody  = "There was a call"
	DefaultDelay = 2 * time.Second
)

// Notification is a local notice shown to the user
type Notification struct {
	CallID string
	Title  string
	Body   string
	Delay  time.Duration
}

// WithDefaults fills empty fields with the missed-call defaults
func (n Notification) WithDefaults() Notification {
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if n.Body == "" {
		n.Body = DefaultBody
	}
	if n.Delay <= 0 {
		n.Delay = DefaultDelay
	}
	return n
}

// Notifier schedules local notifications and reports their authorization
type Notifier interface {
	Schedule(ctx context.Context, n Notification) error
	RequestAuthorization(ctx context.Context, options []string) (bool, error)
	Settings(ctx context.Context) (map[string]any, error)
	Close() error
}

// LoggingNotifier delivers notifications to the log after their delay.
type LoggingNotifier struct {
	mu        sync.Mutex
	granted   bool
	options   []string
	timers    map[*time.Timer]struct{}
	onDeliver func(Notification)
}

// NewLoggingNotifier creates a notifier. onDeliver, when set, is called for
// every delivered notification.
func NewLoggingNotifier(onDeliver func(Notification)) *LoggingNotifier {
	return &LoggingNotifier{
		timers:    make(map[*time.Timer]struct{}),
		onDeliver: onDeliver,
	}
}

func (n *LoggingNotifier) Schedule(ctx context.Context, note Notification) error {
	note = note.WithDefaults()

	n.mu.Lock()
	defer n.mu.Unlock()

	var t *time.Timer
	t = time.AfterFunc(note.Delay, func() {
		n.mu.Lock()
		delete(n.timers, t)
		deliver := n.onDeliver
		n.mu.Unlock()

		slog.Info("[Notify] Local notification", "call_id", note.CallID, "title", note.Title, "body", note.Body)
		if deliver != nil {
			deliver(note)
		}
	})
	n.timers[t] = struct{}{}
	slog.Debug("[Notify] Scheduled", "call_id", note.CallID, "delay", note.Delay)
	return nil
}

func (n *LoggingNotifier) RequestAuthorization(ctx context.Context, options []string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.granted = true
	n.options = slices.Clone(options)
	slog.Info("[Notify] Authorization granted", "options", options)
	return true, nil
}

func (n *LoggingNotifier) Settings(ctx context.Context) (map[string]any, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	status := "notDetermined"
	if n.granted {
		status = "authorized"
	}
	setting := func(name string) string {
		if n.granted && (len(n.options) == 0 || slices.Contains(n.options, name)) {
			return "enabled"
		}
		return "disabled"
	}
	return map[string]any{
		"authorizationStatus": status,
		"alertSetting":        setting("alert"),
		"soundSetting":        setting("sound"),
		"badgeSetting":        setting("badge"),
	}, nil
}

// Close cancels notifications that have not been delivered yet
func (n *LoggingNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for t := range n.timers {
		t.Stop()
	}
	n.timers = make(map[*time.Timer]struct{})
	return nil
}

var _ Notifier = (*LoggingNotifier)(nil)

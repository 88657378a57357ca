// Package notify delivers signal notifications to external channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/observability"
)

// Kind identifies what happened to a signal.
type Kind string

// Kind values.
const (
	KindRecorded  Kind = "signal_recorded"
	KindCompleted Kind = "signal_completed"
)

// Notification is one message about one signal.
type Notification struct {
	Kind      Kind
	Title     string
	Message   string
	Signal    *domain.Signal
	Timestamp time.Time
}

// Notifier is a delivery channel.
type Notifier interface {
	Send(ctx context.Context, n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled notifier. A failing
// notifier does not stop delivery to the others.
type Manager struct {
	notifiers []Notifier
	now       func() time.Time
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// ManagerOptions contains configuration for creating a Manager.
type ManagerOptions struct {
	Now     func() time.Time
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// NewManager creates a notification manager with the given notifiers.
func NewManager(opts ManagerOptions, notifiers ...Notifier) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		notifiers: notifiers,
		now:       now,
		metrics:   observability.OrDefault(opts.Metrics),
		logger:    opts.Logger.With().Str("component", "notify").Logger(),
	}
}

// AddNotifier adds a notification channel.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Enabled returns the names of enabled notifiers.
func (m *Manager) Enabled() []string {
	var names []string
	for _, n := range m.notifiers {
		if n.IsEnabled() {
			names = append(names, n.Name())
		}
	}
	return names
}

// Send delivers n to all enabled notifiers and joins their errors.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		err := notifier.Send(ctx, n)
		m.metrics.RecordNotification(notifier.Name(), err)
		if err != nil {
			m.logger.Warn().Err(err).Str("notifier", notifier.Name()).Str("kind", string(n.Kind)).
				Msg("notification failed")
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// NotifyRecorded announces a newly recorded signal.
func (m *Manager) NotifyRecorded(ctx context.Context, s *domain.Signal) error {
	title, message := FormatRecorded(s)
	return m.Send(ctx, &Notification{
		Kind:      KindRecorded,
		Title:     title,
		Message:   message,
		Signal:    s,
		Timestamp: m.now().UTC(),
	})
}

// NotifyCompleted announces the outcome of a completed signal.
func (m *Manager) NotifyCompleted(ctx context.Context, s *domain.Signal) error {
	title, message := FormatCompleted(s)
	return m.Send(ctx, &Notification{
		Kind:      KindCompleted,
		Title:     title,
		Message:   message,
		Signal:    s,
		Timestamp: m.now().UTC(),
	})
}

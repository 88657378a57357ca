package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify_log").Logger()}
}

func (l *LogNotifier) Name() string {
	return "log"
}

func (l *LogNotifier) IsEnabled() bool {
	return true
}

func (l *LogNotifier) Send(_ context.Context, n *Notification) error {
	ev := l.logger.Info().Str("kind", string(n.Kind)).Str("title", n.Title)
	if s := n.Signal; s != nil {
		ev = ev.Str("signal_id", s.ID).Str("pair", s.CurrencyPair)
		if s.PnL.Valid {
			ev = ev.Str("result", string(s.Result)).Str("pnl", s.PnL.Decimal.String())
		}
	}
	ev.Msg(n.Message)
	return nil
}

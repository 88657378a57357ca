package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"fx-signal-lab/internal/domain"
)

// publisher is the subset of the redis client used for pub/sub.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// RedisPublisher publishes notifications as JSON events on a Redis channel.
type RedisPublisher struct {
	client  publisher
	channel string
}

// NewRedisPublisher creates a publisher. It is disabled when client is nil or
// channel is empty.
func NewRedisPublisher(client *goredis.Client, channel string) *RedisPublisher {
	p := &RedisPublisher{channel: channel}
	if client != nil {
		p.client = client
	}
	return p
}

func (p *RedisPublisher) Name() string {
	return "redis"
}

func (p *RedisPublisher) IsEnabled() bool {
	return p.client != nil && p.channel != ""
}

// Event is the JSON payload published for a notification.
type Event struct {
	Kind          Kind       `json:"kind"`
	Timestamp     time.Time  `json:"timestamp"`
	Title         string     `json:"title"`
	SignalID      string     `json:"signal_id"`
	CurrencyPair  string     `json:"currency_pair"`
	Action        string     `json:"action"`
	Status        string     `json:"status"`
	EntryPrice    string     `json:"entry_price"`
	StopLoss      string     `json:"stop_loss"`
	TakeProfit    string     `json:"take_profit"`
	Confidence    float64    `json:"confidence"`
	Result        string     `json:"result,omitempty"`
	ActualExit    string     `json:"actual_exit,omitempty"`
	PnL           string     `json:"pnl,omitempty"`
	PnLPercentage string     `json:"pnl_percentage,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewEvent builds the published payload of n.
func NewEvent(n *Notification) Event {
	e := Event{Kind: n.Kind, Timestamp: n.Timestamp, Title: n.Title}
	s := n.Signal
	if s == nil {
		return e
	}

	e.SignalID = s.ID
	e.CurrencyPair = s.CurrencyPair
	e.Action = string(s.Action)
	e.Status = string(s.Status)
	e.EntryPrice = s.EntryPrice.String()
	e.StopLoss = s.StopLoss.String()
	e.TakeProfit = s.TakeProfit.String()
	e.Confidence = s.Confidence
	if s.Status == domain.StatusCompleted {
		e.Result = string(s.Result)
		e.ActualExit = s.ActualExit.Decimal.String()
		e.PnL = s.PnL.Decimal.String()
		e.PnLPercentage = s.PnLPercentage.Decimal.String()
		e.CompletedAt = s.CompletedAt
	}
	return e
}

func (p *RedisPublisher) Send(ctx context.Context, n *Notification) error {
	if !p.IsEnabled() {
		return nil
	}

	payload, err := json.Marshal(NewEvent(n))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}

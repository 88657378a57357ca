package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-signal-lab/internal/analysis"
	"fx-signal-lab/internal/config"
	"fx-signal-lab/internal/domain"
)

func memoryConfig() *config.Config {
	cfg := config.New()
	cfg.App.MetricsNamespace = "app_test"
	cfg.Storage.Backend = "memory"
	cfg.Storage.ClickhouseDSN = ""
	cfg.PriceFeed.Source = "demo"
	cfg.Notify.SlackWebhookURL = ""
	cfg.Notify.RedisChannel = ""
	cfg.Notify.Log = true
	return cfg
}

func TestNew_MemoryGraph(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "demo", a.Prices.Name())
	assert.Equal(t, []string{"log"}, a.Notifier.Enabled())
	assert.Equal(t, 24*time.Hour, a.Ledger.VerifyAfter())

	w := httptest.NewRecorder()
	a.API.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_FileGraphSharesLedger(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "file"
	cfg.Storage.FilePath = filepath.Join(t.TempDir(), "signals.json")
	ctx := context.Background()

	first, err := New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	sig := analysis.Analyze("USD/JPY", "USD/JPYは145.50で強いブレイクアウトを確認しました...146.00を目標に、145.20を損切りラインとして買いエントリーを推奨します。")
	rec, err := first.Ledger.Record(ctx, sig)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestNew_FallbackChain(t *testing.T) {
	cfg := memoryConfig()
	cfg.PriceFeed.Source = "yahoo"
	cfg.PriceFeed.Fallback = true

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "yahoo>demo", a.Prices.Name())
}

func TestNew_RedisNotifierNeedsURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.Notify.RedisChannel = "fx-signals"
	cfg.Storage.RedisURL = ""

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestApp_RecordVerifyStatistics(t *testing.T) {
	cfg := memoryConfig()
	cfg.Verification.VerifyAfterHours = 1e-9 // a few microseconds

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	// Demo USD/JPY trades at 150.00, above the take profit.
	sig := analysis.Analyze("USD/JPY", "USD/JPYは145.50で強いブレイクアウトを確認しました...146.00を目標に、145.20を損切りラインとして買いエントリーを推奨します。")
	rec, err := a.Ledger.Record(ctx, sig)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	report, err := a.Verifier.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)

	got, err := a.Ledger.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, domain.ResultTPHit, got.Result)

	stats, err := a.Aggregator.Latest(ctx, "USD/JPY")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalTrades)
	assert.Equal(t, "0.5", stats.TotalPnL.String())
}

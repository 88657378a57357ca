package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-signal-lab/internal/app"
	"fx-signal-lab/internal/config"
	"fx-signal-lab/internal/domain"
)

const buyText = "USD/JPYは145.50で強いブレイクアウトを確認しました...146.00を目標に、145.20を損切りラインとして買いエントリーを推奨します。"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return executeWith(t, filepath.Join(t.TempDir(), "signals.json"), stdin, args...)
}

// executeWith runs the root command against the ledger file at signalFile.
func executeWith(t *testing.T, signalFile, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("SIGNAL_FILE", signalFile)
	t.Setenv("PRICE_FEED", "demo")
	t.Setenv("CLICKHOUSE_DSN", "")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("NOTIFY_REDIS_CHANNEL", "")
	t.Setenv("SLACK_WEBHOOK_URL", "")

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyze_FromArgument(t *testing.T) {
	out, err := execute(t, "", "analyze", "--pair", "USD/JPY", buyText)
	require.NoError(t, err)
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "145.5")
	assert.Contains(t, out, "146")
}

func TestAnalyze_FromStdinAndRecord(t *testing.T) {
	out, err := execute(t, buyText, "analyze", "--record")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded ")
}

var recordedID = regexp.MustCompile(`Recorded (\S+),`)

func TestAnalyze_RecordSurvivesRestart(t *testing.T) {
	signalFile := filepath.Join(t.TempDir(), "data", "signals.json")

	out, err := executeWith(t, signalFile, "", "analyze", "--pair", "usd/jpy", "--record", buyText)
	require.NoError(t, err)
	m := recordedID.FindStringSubmatch(out)
	require.Len(t, m, 2, "no signal id in %q", out)

	// A fresh service graph over the same configuration sees the signal.
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, "file", cfg.Storage.Backend)

	a, err := app.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	sig, err := a.Ledger.Get(context.Background(), m[1])
	require.NoError(t, err)
	assert.Equal(t, "USD/JPY", sig.CurrencyPair)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.Equal(t, domain.StatusPending, sig.Status)

	out, err = executeWith(t, signalFile, "", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Verification pass")
}

func TestAnalyze_RecordRejectsMemoryBackend(t *testing.T) {
	t.Setenv("PRICE_FEED", "demo")
	t.Setenv("STORAGE_BACKEND", "memory")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "--log-level", "error", "analyze", "--record", buyText})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not persist")
	assert.NotContains(t, out.String(), "Recorded ")
}

func TestVerify_RejectsMemoryBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "verify"})
	assert.Error(t, cmd.Execute())
}

func TestAnalyze_RejectsMalformedPair(t *testing.T) {
	_, err := execute(t, "", "analyze", "--pair", "USD,JPY", buyText)
	assert.Error(t, err)
}

func TestAnalyze_NoneNotRecorded(t *testing.T) {
	out, err := execute(t, "", "analyze", "--record", "wait and see")
	require.NoError(t, err)
	assert.Contains(t, out, "NONE")
	assert.Contains(t, out, "nothing recorded")
}

func TestAnalyze_EmptyInput(t *testing.T) {
	_, err := execute(t, "  ", "analyze")
	assert.Error(t, err)
}

func TestVerify_EmptyLedger(t *testing.T) {
	out, err := execute(t, "", "verify", "--audit")
	require.NoError(t, err)
	assert.Contains(t, out, "Verification pass")
	assert.Contains(t, out, "0 completed signals consistent")
}

func TestStats_EmptyLedger(t *testing.T) {
	out, err := execute(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Performance: ALL")
}

func TestReport_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "", "report", "--out", dir)
	require.NoError(t, err)

	for _, name := range []string{"REPORT.md", "signals.csv", "statistics.csv"} {
		assert.Contains(t, out, name)
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestMigrate_RequiresDSN(t *testing.T) {
	_, err := execute(t, "", "migrate")
	assert.Error(t, err)
}

func TestConfigError(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "sqlite")
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "stats"})
	assert.Error(t, cmd.Execute())
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fx-signal-lab/internal/analysis"
	"fx-signal-lab/internal/domain"
	"fx-signal-lab/internal/storage"
)

const (
	defaultListLimit    = 100
	defaultHistoryLimit = 50
	maxLimit            = 1000
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.verifier == nil {
		c.JSON(http.StatusOK, gin.H{"verifier": gin.H{"state": "disabled"}})
		return
	}

	st := s.verifier.Status()
	state := "idle"
	if st.Running {
		state = "running"
	}
	var lastPassAt *time.Time
	if !st.LastPassAt.IsZero() {
		t := st.LastPassAt
		lastPassAt = &t
	}

	c.JSON(http.StatusOK, gin.H{
		"verifier": gin.H{
			"state":            state,
			"passes":           st.Passes,
			"interval_seconds": s.verifier.Interval().Seconds(),
			"last_pass_at":     lastPassAt,
			"last_pass":        newPassView(st.LastReport),
		},
		"verify_after_hours": s.ledger.VerifyAfter().Hours(),
	})
}

func (s *Server) handleListSignals(c *gin.Context) {
	pair, ok := queryPair(c)
	if !ok {
		return
	}
	filter := storage.SignalFilter{
		CurrencyPair: pair,
		Status:       domain.Status(strings.ToUpper(c.Query("status"))),
		Action:       domain.Action(strings.ToUpper(c.Query("action"))),
	}

	switch filter.Status {
	case "", domain.StatusPending, domain.StatusActive, domain.StatusCompleted:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be PENDING, ACTIVE or COMPLETED"})
		return
	}
	switch filter.Action {
	case "", domain.ActionBuy, domain.ActionSell:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be BUY or SELL"})
		return
	}

	limit, err := parseLimit(c.Query("limit"), defaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter.Limit = limit

	signals, err := s.ledger.List(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, err, "list signals")
		return
	}

	views := make([]SignalView, 0, len(signals))
	for _, sig := range signals {
		views = append(views, newSignalView(sig))
	}
	c.JSON(http.StatusOK, gin.H{"signals": views, "count": len(views)})
}

func (s *Server) handleGetSignal(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	sig, err := s.ledger.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}
	if err != nil {
		s.internalError(c, err, "get signal")
		return
	}

	task, err := s.ledger.Task(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.internalError(c, err, "get task")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signal": newSignalView(sig),
		"task":   newTaskView(task),
	})
}

type analyzeRequest struct {
	CurrencyPair string `json:"currency_pair" binding:"required"`
	Text         string `json:"text" binding:"required"`
	Record       *bool  `json:"record"` // default true
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := domain.NormalizePair(req.CurrencyPair)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cls := analysis.Classify(req.Text)
	s.metrics.RecordAnalyzed(string(cls.Action))

	resp := gin.H{
		"classification": newClassificationView(cls),
		"recorded":       false,
	}

	record := req.Record == nil || *req.Record
	if !record || cls.Action == domain.ActionNone {
		c.JSON(http.StatusOK, resp)
		return
	}

	sig := cls.Signal(pair)
	sig.Analysis = req.Text

	rec, err := s.ledger.Record(c.Request.Context(), sig)
	if errors.Is(err, domain.ErrInvalidSignal) {
		resp["reason"] = err.Error()
		c.JSON(http.StatusOK, resp)
		return
	}
	if err != nil {
		s.internalError(c, err, "record signal")
		return
	}

	resp["recorded"] = true
	resp["signal"] = newSignalView(rec)
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleStatistics(c *gin.Context) {
	pair, ok := queryPair(c)
	if !ok {
		return
	}

	st, err := s.stats.Latest(c.Request.Context(), pair)
	if err != nil {
		s.internalError(c, err, "latest statistics")
		return
	}
	c.JSON(http.StatusOK, newStatisticsView(st))
}

func (s *Server) handleStatisticsHistory(c *gin.Context) {
	pair, ok := queryPair(c)
	if !ok {
		return
	}
	limit, err := parseLimit(c.Query("limit"), defaultHistoryLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	history, err := s.stats.History(c.Request.Context(), pair, limit)
	if err != nil {
		s.internalError(c, err, "statistics history")
		return
	}

	views := make([]StatisticsView, 0, len(history))
	for _, st := range history {
		views = append(views, newStatisticsView(st))
	}
	c.JSON(http.StatusOK, gin.H{"history": views, "count": len(views)})
}

func (s *Server) internalError(c *gin.Context, err error, op string) {
	s.logger.Error().Err(err).Str("op", op).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// queryPair reads the optional pair query parameter in canonical form. It
// writes a 400 response and returns false when the pair is malformed.
func queryPair(c *gin.Context) (string, bool) {
	raw := c.Query("pair")
	if raw == "" {
		return "", true
	}
	pair, err := domain.NormalizePair(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return pair, true
}

func parseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/output"
	"github.com/wonny/ewreturns/internal/pipeline"
	"github.com/wonny/ewreturns/internal/returns"
	"github.com/wonny/ewreturns/pkg/logger"
)

// Runner executes return runs and remembers the last one
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Last() *pipeline.Result
}

// RunStore reads persisted runs
type RunStore interface {
	LatestRuns(ctx context.Context, limit int) ([]output.RunRecord, error)
	GetValues(ctx context.Context, runID int64) ([]output.ValuePoint, error)
}

// ReturnsHandler handles return run endpoints
// ⭐ SSOT: 수익률 API 핸들러는 여기서만
type ReturnsHandler struct {
	runner         Runner
	store          RunStore // nil without a database
	defaultCapital decimal.Decimal
	outputRoot     string // request output dirs resolve under this directory
	running        atomic.Bool
	logger         *logger.Logger
}

// NewReturnsHandler creates a new returns handler. CSV output requested
// over HTTP is written only below outputRoot.
func NewReturnsHandler(runner Runner, store RunStore, defaultCapital decimal.Decimal, outputRoot string, log *logger.Logger) *ReturnsHandler {
	return &ReturnsHandler{
		runner:         runner,
		store:          store,
		defaultCapital: defaultCapital,
		outputRoot:     outputRoot,
		logger:         log,
	}
}

// MetricsResponse is Metrics with NaN rendered as null
type MetricsResponse struct {
	Mode        contracts.Mode `json:"mode"`
	Start       string         `json:"start"`
	End         string         `json:"end"`
	StartValue  *float64       `json:"startValue"`
	EndValue    *float64       `json:"endValue"`
	TotalReturn *float64       `json:"totalReturn"`
	CAGR        *float64       `json:"cagr"`
	Volatility  *float64       `json:"volatility"`
	MaxDrawdown *float64       `json:"maxDrawdown"`
	Periods     int            `json:"periods"`
	Distributed *float64       `json:"distributed"`
}

// RunSummary describes a run
type RunSummary struct {
	RunID      string            `json:"runId"`
	Name       string            `json:"name"`
	Start      string            `json:"start"`
	End        string            `json:"end"`
	Good       []string          `json:"good"`
	Skipped    []string          `json:"skipped"`
	Schedule   []string          `json:"schedule"`
	Metrics    []MetricsResponse `json:"metrics"`
	Files      []string          `json:"files"`
	RunIDs     []int64           `json:"runIds"`
	Duration   string            `json:"duration"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// PeriodResponse is one period snapshot
type PeriodResponse struct {
	Period        int                `json:"period"`
	Start         string             `json:"start"`
	End           string             `json:"end"`
	Capital       float64            `json:"capital"`
	Eligible      []string           `json:"eligible"`
	Shares        map[string]float64 `json:"shares"`
	EndValue      float64            `json:"endValue"`
	Distributions float64            `json:"distributions"`
	NextCapital   float64            `json:"nextCapital"`
	Degenerate    bool               `json:"degenerate"`
}

// RunRequest triggers a run
type RunRequest struct {
	Tickers    []string `json:"tickers"`
	Start      string   `json:"start"`   // YYYY-MM-DD
	End        string   `json:"end"`     // YYYY-MM-DD
	Capital    string   `json:"capital"` // optional decimal
	Modes      []string `json:"modes"`
	PriceField string   `json:"priceField"` // close, adj_close; empty picks per mode
	Sweep      string   `json:"sweep"`      // amount, per_share
	OutputDir  string   `json:"outputDir"`  // relative to the server's OUTPUT_DIR
	Persist    bool     `json:"persist"`
}

// GetLast returns the last run summary
// GET /api/returns/last
func (h *ReturnsHandler) GetLast(w http.ResponseWriter, r *http.Request) {
	last := h.runner.Last()
	if last == nil {
		respondError(w, http.StatusNotFound, "No run has completed yet")
		return
	}
	respondJSON(w, http.StatusOK, summarize(last))
}

// GetPeriods returns the period snapshots of the last run for a mode
// GET /api/returns/last/{mode}/periods
func (h *ReturnsHandler) GetPeriods(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lastByMode(w, r)
	if !ok {
		return
	}

	periods := make([]PeriodResponse, 0, len(a.States))
	for _, st := range a.States {
		eligible := st.Eligible
		if eligible == nil {
			eligible = []string{}
		}
		periods = append(periods, PeriodResponse{
			Period:        st.Period,
			Start:         st.Start.Format("2006-01-02"),
			End:           st.End.Format("2006-01-02"),
			Capital:       st.Capital,
			Eligible:      eligible,
			Shares:        st.Shares,
			EndValue:      st.EndValue,
			Distributions: st.Distributions,
			NextCapital:   st.NextCapital,
			Degenerate:    st.Degenerate,
		})
	}
	respondJSON(w, http.StatusOK, periods)
}

// GetCSV streams the last run as CSV
// GET /api/returns/last/{mode}/csv?kind=return|summary
func (h *ReturnsHandler) GetCSV(w http.ResponseWriter, r *http.Request) {
	a, ok := h.lastByMode(w, r)
	if !ok {
		return
	}

	write, name := output.WriteReturn, output.ReturnFileName(a.Mode)
	switch r.URL.Query().Get("kind") {
	case "", "return":
	case "summary":
		write, name = output.WriteSummary, output.SummaryFileName(a.Mode)
	default:
		respondError(w, http.StatusBadRequest, "Invalid kind (valid: return, summary)")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := write(w, a); err != nil {
		h.logger.WithError(err).Error("Failed to stream CSV")
	}
}

// Run triggers a run and waits for it
// POST /api/returns/run
func (h *ReturnsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := h.toRequest(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.running.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "A run is already in progress")
		return
	}
	defer h.running.Store(false)

	h.logger.WithFields(map[string]interface{}{
		"tickers": len(req.Instruments),
		"start":   body.Start,
		"end":     body.End,
	}).Info("Return run triggered")

	res, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.logger.WithError(err).Error("Return run failed")
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summarize(res))
}

// ListRuns returns persisted runs
// GET /api/returns/runs?limit=20
func (h *ReturnsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Database not configured")
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			respondError(w, http.StatusBadRequest, "Invalid limit (1-500)")
			return
		}
		limit = n
	}

	runs, err := h.store.LatestRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}

	items := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		items = append(items, map[string]interface{}{
			"id":         run.ID,
			"mode":       run.Mode,
			"configHash": run.ConfigHash,
			"start":      run.Start.Format("2006-01-02"),
			"end":        run.End.Format("2006-01-02"),
			"capital":    run.Capital,
			"tickers":    run.Tickers,
			"finalValue": run.FinalValue,
			"metrics":    metricsResponse(run.Metrics),
			"createdAt":  run.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, items)
}

// GetRunValues returns the stored value series of a run
// GET /api/returns/runs/{id}/values
func (h *ReturnsHandler) GetRunValues(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Database not configured")
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run id")
		return
	}

	values, err := h.store.GetValues(r.Context(), id)
	if errors.Is(err, output.ErrRunNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to get run values")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve values")
		return
	}
	respondJSON(w, http.StatusOK, values)
}

func (h *ReturnsHandler) lastByMode(w http.ResponseWriter, r *http.Request) (*returns.AnnotatedDataset, bool) {
	mode, err := contracts.ParseMode(mux.Vars(r)["mode"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid mode (valid: price, total)")
		return nil, false
	}

	last := h.runner.Last()
	if last == nil {
		respondError(w, http.StatusNotFound, "No run has completed yet")
		return nil, false
	}

	a, ok := last.ByMode(mode)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Last run has no %s result", mode))
		return nil, false
	}
	return a, true
}

func (h *ReturnsHandler) toRequest(body RunRequest) (pipeline.Request, error) {
	if len(body.Tickers) == 0 {
		return pipeline.Request{}, fmt.Errorf("tickers required")
	}

	start, err := contracts.ParseDate(body.Start)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("invalid 'start' date format (expected YYYY-MM-DD)")
	}
	end, err := contracts.ParseDate(body.End)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("invalid 'end' date format (expected YYYY-MM-DD)")
	}

	capital := h.defaultCapital
	if body.Capital != "" {
		capital, err = decimal.NewFromString(body.Capital)
		if err != nil {
			return pipeline.Request{}, fmt.Errorf("invalid capital %q", body.Capital)
		}
	}

	req := pipeline.Request{
		Name:      "api",
		Start:     start,
		End:       end,
		Capital:   capital,
		Options:   returns.DefaultOptions(),
		Persist:   body.Persist,
	}
	if body.OutputDir != "" {
		dir, err := h.resolveOutputDir(body.OutputDir)
		if err != nil {
			return pipeline.Request{}, err
		}
		req.OutputDir = dir
	}
	for _, t := range body.Tickers {
		req.Instruments = append(req.Instruments, contracts.NewInstrument(t))
	}
	for _, m := range body.Modes {
		mode, err := contracts.ParseMode(m)
		if err != nil {
			return pipeline.Request{}, err
		}
		req.Modes = append(req.Modes, mode)
	}

	switch body.PriceField {
	case "":
	case "close":
		req.Options.PriceField = dataset.FieldClose
	case "adj_close":
		req.Options.PriceField = dataset.FieldAdjClose
	default:
		return pipeline.Request{}, fmt.Errorf("invalid priceField (valid: close, adj_close)")
	}
	switch body.Sweep {
	case "", "amount":
	case "per_share":
		req.Options.Sweep = returns.SweepPerShare
	default:
		return pipeline.Request{}, fmt.Errorf("invalid sweep (valid: amount, per_share)")
	}

	return req, nil
}

// resolveOutputDir keeps a requested directory inside outputRoot
func (h *ReturnsHandler) resolveOutputDir(dir string) (string, error) {
	if h.outputRoot == "" {
		return "", fmt.Errorf("file output is disabled on this server")
	}
	if !filepath.IsLocal(dir) {
		return "", fmt.Errorf("invalid outputDir %q (must be a relative path without '..')", dir)
	}
	return filepath.Join(h.outputRoot, dir), nil
}

// statusFor maps run errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrInvalidRange),
		errors.Is(err, contracts.ErrInvalidCapital),
		errors.Is(err, contracts.ErrUnknownMode),
		errors.Is(err, contracts.ErrInputUnreadable):
		return http.StatusBadRequest
	case errors.Is(err, contracts.ErrNoInstruments),
		errors.Is(err, contracts.ErrEmptyRebalancePeriod):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func summarize(res *pipeline.Result) RunSummary {
	s := RunSummary{
		RunID:      res.RunID,
		Name:       res.Name,
		Start:      res.Start.Format("2006-01-02"),
		End:        res.End.Format("2006-01-02"),
		Good:       res.Good,
		Skipped:    res.Skipped,
		Files:      res.Files,
		RunIDs:     res.RunIDs,
		Duration:   res.Duration.String(),
		FinishedAt: res.FinishedAt,
	}
	for _, d := range res.Schedule {
		s.Schedule = append(s.Schedule, d.Format("2006-01-02"))
	}
	for _, m := range res.Metrics {
		s.Metrics = append(s.Metrics, metricsResponse(m))
	}
	return s
}

func metricsResponse(m returns.Metrics) MetricsResponse {
	return MetricsResponse{
		Mode:        m.Mode,
		Start:       m.Start.Format("2006-01-02"),
		End:         m.End.Format("2006-01-02"),
		StartValue:  num(m.StartValue),
		EndValue:    num(m.EndValue),
		TotalReturn: num(m.TotalReturn),
		CAGR:        num(m.CAGR),
		Volatility:  num(m.Volatility),
		MaxDrawdown: num(m.MaxDrawdown),
		Periods:     m.Periods,
		Distributed: num(m.Distributed),
	}
}

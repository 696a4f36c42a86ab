package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/ewreturns/internal/contracts"
	"github.com/wonny/ewreturns/internal/dataset"
	"github.com/wonny/ewreturns/internal/returns"
	"github.com/wonny/ewreturns/internal/schedule"
	"github.com/wonny/ewreturns/internal/universe"
	"github.com/wonny/ewreturns/pkg/logger"
)

// Sink writes computed results
type Sink interface {
	Write(results []*returns.AnnotatedDataset) ([]string, error)
}

// ResultStore persists computed results
type ResultStore interface {
	SaveRun(ctx context.Context, a *returns.AnnotatedDataset, configHash string) (int64, error)
}

// SinkFactory builds a sink for an output directory
type SinkFactory func(dir string) Sink

// Orchestrator runs universe → dataset → schedule → returns → output
// ⭐ SSOT: 실행 흐름 조율은 여기서만
type Orchestrator struct {
	builder *dataset.Builder
	sinks   SinkFactory
	store   ResultStore
	logger  *logger.Logger

	mu   sync.RWMutex
	last *Result
}

// Result holds everything produced by one run
type Result struct {
	RunID           string                      `json:"run_id"`
	Name            string                      `json:"name"`
	Start           time.Time                   `json:"start"`
	End             time.Time                   `json:"end"`
	Requested       []string                    `json:"requested"`
	Good            []string                    `json:"good"`
	Skipped         []string                    `json:"skipped"`
	Schedule        []time.Time                 `json:"schedule"`
	Results         []*returns.AnnotatedDataset `json:"-"`
	Metrics         []returns.Metrics           `json:"-"`
	Files           []string                    `json:"files"`
	RunIDs          []int64                     `json:"run_ids"`
	CompletedStages []string                    `json:"completed_stages"`
	Duration        time.Duration               `json:"duration"`
	FinishedAt      time.Time                   `json:"finished_at"`
}

// ByMode returns the result computed for mode
func (r *Result) ByMode(mode contracts.Mode) (*returns.AnnotatedDataset, bool) {
	for _, a := range r.Results {
		if a.Mode == mode {
			return a, true
		}
	}
	return nil, false
}

// NewOrchestrator creates a new orchestrator. sinks and store may be nil.
func NewOrchestrator(builder *dataset.Builder, sinks SinkFactory, store ResultStore, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		builder: builder,
		sinks:   sinks,
		store:   store,
		logger:  log.WithField("module", "pipeline"),
	}
}

// Last returns the most recent successful run, or nil
func (o *Orchestrator) Last() *Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// Run executes one run. Every fatal error is returned before any output is written.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	startTime := time.Now()

	instruments, err := o.resolveInstruments(req)
	if err != nil {
		return nil, err
	}
	if !req.Capital.IsPositive() {
		return nil, fmt.Errorf("%w: %s", contracts.ErrInvalidCapital, req.Capital.String())
	}
	modes := req.Modes
	if len(modes) == 0 {
		modes = contracts.Modes
	}

	result := &Result{
		RunID:     uuid.NewString(),
		Name:      req.Name,
		Start:     contracts.TradingDay(req.Start),
		End:       contracts.TradingDay(req.End),
		Requested: contracts.Tickers(instruments),
	}

	log := o.logger.WithField("run_id", result.RunID)
	log.WithFields(map[string]interface{}{
		"name":        req.Name,
		"instruments": len(instruments),
		"from":        result.Start.Format("2006-01-02"),
		"to":          result.End.Format("2006-01-02"),
		"capital":     req.Capital.String(),
		"modes":       modes,
	}).Info("Starting return run")

	// 1. dataset
	ds, good, err := o.builder.Build(ctx, instruments, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}
	result.Good = good
	result.Skipped = skipped(result.Requested, good)
	result.CompletedStages = append(result.CompletedStages, "dataset")

	// 2. schedule
	sched, err := schedule.Generate(ds, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("generate schedule: %w", err)
	}
	result.Schedule = sched.Dates
	result.CompletedStages = append(result.CompletedStages, "schedule")

	// 3. returns, one independent computation per mode
	engine := returns.NewEngine(req.Options, log)
	for _, mode := range modes {
		a, err := engine.Compute(ds, sched, good, req.Capital, mode)
		if err != nil {
			return nil, fmt.Errorf("compute %s returns: %w", mode, err)
		}
		result.Results = append(result.Results, a)
		result.Metrics = append(result.Metrics, returns.ComputeMetrics(a))
	}
	result.CompletedStages = append(result.CompletedStages, "returns")

	// 4. output
	if req.OutputDir != "" && o.sinks != nil {
		files, err := o.sinks(req.OutputDir).Write(result.Results)
		if err != nil {
			return nil, fmt.Errorf("write output: %w", err)
		}
		result.Files = files
		result.CompletedStages = append(result.CompletedStages, "output")
	}

	// 5. persist
	if req.Persist {
		if o.store == nil {
			log.Warn("Persist requested but no database configured; skipping")
		} else {
			for _, a := range result.Results {
				id, err := o.store.SaveRun(ctx, a, req.ConfigHash)
				if err != nil {
					return nil, fmt.Errorf("persist %s run: %w", a.Mode, err)
				}
				result.RunIDs = append(result.RunIDs, id)
			}
			result.CompletedStages = append(result.CompletedStages, "persist")
		}
	}

	result.Duration = time.Since(startTime)
	result.FinishedAt = time.Now()

	o.mu.Lock()
	o.last = result
	o.mu.Unlock()

	fields := map[string]interface{}{
		"good":     len(result.Good),
		"skipped":  len(result.Skipped),
		"periods":  len(sched.Dates),
		"duration": result.Duration.String(),
	}
	for _, m := range result.Metrics {
		fields[string(m.Mode)+"_final"] = m.EndValue
	}
	log.WithFields(fields).Info("Return run completed")

	return result, nil
}

func (o *Orchestrator) resolveInstruments(req Request) ([]contracts.Instrument, error) {
	if len(req.Instruments) > 0 {
		return req.Instruments, nil
	}
	if req.TickersFile == "" {
		return nil, fmt.Errorf("%w: no instruments and no tickers file", contracts.ErrInputUnreadable)
	}
	instruments, err := universe.LoadFile(req.TickersFile)
	if err != nil {
		return nil, err
	}
	return instruments, nil
}

// skipped lists requested tickers missing from good, in request order
func skipped(requested, good []string) []string {
	ok := make(map[string]bool, len(good))
	for _, t := range good {
		ok[t] = true
	}
	out := []string{}
	for _, t := range requested {
		if !ok[t] {
			out = append(out, t)
		}
	}
	return out
}

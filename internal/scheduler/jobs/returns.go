package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ewreturns/internal/pipeline"
	"github.com/wonny/ewreturns/pkg/logger"
)

// Runner executes a return run
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// RequestFunc builds the request for a run started at now
type RequestFunc func(now time.Time) (pipeline.Request, error)

// ReturnsJob recomputes portfolio returns on a schedule
type ReturnsJob struct {
	runner   Runner
	request  RequestFunc
	schedule string
	now      func() time.Time
	logger   *logger.Logger
}

// NewReturnsJob creates a new returns job
func NewReturnsJob(runner Runner, request RequestFunc, schedule string, log *logger.Logger) *ReturnsJob {
	return &ReturnsJob{
		runner:   runner,
		request:  request,
		schedule: schedule,
		now:      time.Now,
		logger:   log,
	}
}

// Name returns the job name
func (j *ReturnsJob) Name() string {
	return "returns"
}

// Schedule returns the cron schedule
func (j *ReturnsJob) Schedule() string {
	return j.schedule
}

// Run executes one return run
func (j *ReturnsJob) Run(ctx context.Context) error {
	req, err := j.request(j.now())
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"name": req.Name,
		"from": req.Start.Format("2006-01-02"),
		"to":   req.End.Format("2006-01-02"),
	}).Info("Starting scheduled return run")

	res, err := j.runner.Run(ctx, req)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"good":    len(res.Good),
		"skipped": len(res.Skipped),
		"files":   len(res.Files),
	}).Info("Scheduled return run completed")

	return nil
}

// ClampToToday caps the request end at now, for profiles whose window
// reaches into the future
func ClampToToday(req pipeline.Request, now time.Time) pipeline.Request {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if req.End.After(today) {
		req.End = today
	}
	return req
}

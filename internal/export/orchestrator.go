package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/apierr"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/config"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/metrica"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/report"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/retry"
	"github.com/jonesrussell/north-cloud/ads-correlator/internal/telemetry"
)

// Outcome status values for an advance call.
const (
	StatusOK      = "ok"
	StatusPending = "pending"
)

// ErrParamsMismatch is returned when a resume names a tracked request id
// with parameters that disagree with the ones the job was created with.
var ErrParamsMismatch = errors.New("export parameters do not match the tracked job")

// ErrInvalidRequest marks advance or cancel calls the caller must fix:
// missing counter id, missing request id, unknown request id without
// enough parameters to resume.
var ErrInvalidRequest = errors.New("invalid export request")

// AdvanceRequest asks the orchestrator to move one export forward. An
// empty RequestID starts a new export; a non-empty one resumes.
type AdvanceRequest struct {
	RequestID string
	Params    Params
	RowBudget int
	MaxWait   time.Duration
}

// AdvanceResult is the outcome of one advance or cancel call.
type AdvanceResult struct {
	Status          string       `json:"status"`
	RequestID       string       `json:"request_id"`
	State           State        `json:"state"`
	LastStatus      string       `json:"last_status,omitempty"`
	Parts           []int        `json:"parts,omitempty"`
	PartsDownloaded int          `json:"parts_downloaded"`
	RowsConsumed    int          `json:"rows_consumed"`
	Partial         bool         `json:"partial,omitempty"`
	Table           report.Table `json:"-"`
	Warnings        []string     `json:"warnings,omitempty"`
}

// Orchestrator drives Logs API exports through their state machine. Each
// Advance call is a synchronous step function bounded by MaxWait; long
// waits surface as a pending result carrying the request id, never as a
// background goroutine.
type Orchestrator struct {
	metrica   *metrica.Client
	store     *Store
	cfg       config.ExportConfig
	telemetry *telemetry.Provider
	log       logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an export orchestrator.
func New(client *metrica.Client, store *Store, cfg config.ExportConfig, tel *telemetry.Provider, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		metrica:   client,
		store:     store,
		cfg:       cfg,
		telemetry: tel,
		log:       log,
		now:       time.Now,
		sleep:     defaultSleep,
	}
}

// Advance moves the export one or more transitions forward and returns
// either the completed table, or a pending snapshot once MaxWait is
// spent while the provider is still preparing the request.
func (o *Orchestrator) Advance(ctx context.Context, req AdvanceRequest) (*AdvanceResult, error) {
	ctx, span := o.telemetry.StartSpan(ctx, "export.advance",
		attribute.String("request_id", req.RequestID),
		attribute.Int64("counter_id", req.Params.CounterID))
	defer span.End()

	job, err := o.resolveJob(req)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return o.terminalResult(job)
	}

	maxWait := req.MaxWait
	if maxWait <= 0 {
		maxWait = o.cfg.MaxWait
	}
	deadline := o.now().Add(maxWait)
	polls := 0

	for {
		if err := ctx.Err(); err != nil {
			o.transition(job, StateCancelled)
			o.store.Put(job)
			return nil, fmt.Errorf("export cancelled: %w", err)
		}

		switch job.State {
		case StateEvaluating:
			if err := o.create(ctx, job); err != nil {
				return nil, o.settleError(job, err)
			}

		case StateCreated:
			o.transition(job, StatePolling)

		case StatePolling:
			ready, err := o.poll(ctx, job)
			if err != nil {
				return nil, o.settleError(job, err)
			}
			if ready {
				o.transition(job, StateDownloading)
				continue
			}
			polls++
			if !o.now().Before(deadline) {
				o.store.Put(job)
				return o.snapshot(job), nil
			}
			delay := o.pollDelay(polls)
			if remaining := deadline.Sub(o.now()); delay > remaining {
				delay = remaining
			}
			if err := o.sleep(ctx, delay); err != nil {
				o.transition(job, StateCancelled)
				o.store.Put(job)
				return nil, fmt.Errorf("export cancelled: %w", err)
			}

		case StateDownloading:
			if err := o.download(ctx, job); err != nil {
				return nil, o.settleError(job, err)
			}

		case StateCompleted:
			o.store.Put(job)
			return o.snapshot(job), nil

		default:
			return nil, fmt.Errorf("export: cannot advance from state %q", job.State)
		}
	}
}

// Cancel stops an export and releases the provider-side request.
// Cancelling a terminal job is a no-op success. For request ids this
// process does not track, a counter id is required for the provider
// calls.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string, counterID int64) (*AdvanceResult, error) {
	if requestID == "" {
		return nil, fmt.Errorf("%w: request id is required to cancel", ErrInvalidRequest)
	}

	job, ok := o.store.Get(requestID)
	if !ok {
		if counterID == 0 {
			return nil, fmt.Errorf("%w: unknown request id %q; pass counter_id to cancel provider-side", ErrInvalidRequest, requestID)
		}
		job = ResumeJob(requestID, Params{CounterID: counterID}, o.cfg.RowBudget, o.now())
	}
	if job.State.Terminal() {
		o.store.Put(job)
		return o.snapshot(job), nil
	}

	if err := o.metrica.LogsCancel(ctx, job.Params.CounterID, job.RequestID); err != nil {
		job.warn("provider-side cancel failed: " + err.Error())
		o.log.Warn("logs cancel failed",
			logger.String("request_id", job.RequestID),
			logger.Error(err))
	}
	o.cleanup(ctx, job)
	o.transition(job, StateCancelled)
	o.store.Put(job)
	return o.snapshot(job), nil
}

func (o *Orchestrator) resolveJob(req AdvanceRequest) (*Job, error) {
	rowBudget := req.RowBudget
	if rowBudget <= 0 {
		rowBudget = o.cfg.RowBudget
	}

	if req.RequestID == "" {
		if req.Params.CounterID == 0 {
			return nil, fmt.Errorf("%w: counter id is required", ErrInvalidRequest)
		}
		return NewJob(req.Params, rowBudget, o.now()), nil
	}

	if job, ok := o.store.Get(req.RequestID); ok {
		if req.Params != (Params{}) && !job.Params.SameScope(req.Params) {
			return nil, fmt.Errorf("%w: request %s covers counter %d over %s..%s",
				ErrParamsMismatch, job.RequestID, job.Params.CounterID, job.Params.Date1, job.Params.Date2)
		}
		return job, nil
	}

	if req.Params.CounterID == 0 {
		return nil, fmt.Errorf("%w: unknown request id %q; pass counter_id and dates to resume", ErrInvalidRequest, req.RequestID)
	}
	return ResumeJob(req.RequestID, req.Params, rowBudget, o.now()), nil
}

func (o *Orchestrator) terminalResult(job *Job) (*AdvanceResult, error) {
	switch job.State {
	case StateCompleted, StateCancelled:
		return o.snapshot(job), nil
	case StateFailed:
		return nil, fmt.Errorf("export %s failed: %s", job.RequestID, job.FailureReason)
	}
	return nil, fmt.Errorf("export: unexpected terminal state %q", job.State)
}

// create runs the optional evaluate pre-flight and registers the log
// request with the provider, assigning the job its request id.
func (o *Orchestrator) create(ctx context.Context, job *Job) error {
	params := o.logsParams(job)

	eval, err := o.metrica.LogsEvaluate(ctx, params)
	switch {
	case err != nil:
		o.log.Warn("logs evaluate failed, creating anyway",
			logger.Int64("counter_id", job.Params.CounterID),
			logger.Error(err))
	case !eval.Possible:
		return apierr.New(apierr.ProviderMetrica, "export_not_possible",
			fmt.Sprintf("logs export is not possible for counter %d over %s..%s (max possible day quantity %d)",
				job.Params.CounterID, job.Params.Date1, job.Params.Date2, eval.MaxPossibleDayQuantity),
			"Reduce the date range or the field set.", apierr.KindFatalResource)
	}

	info, err := o.metrica.LogsCreate(ctx, params)
	if err != nil {
		return err
	}
	job.RequestID = info.RequestID
	job.LastStatus = info.Status
	o.transition(job, StateCreated)
	o.store.Put(job)
	o.log.Info("logs export created",
		logger.String("request_id", job.RequestID),
		logger.Int64("counter_id", job.Params.CounterID),
		logger.String("date1", job.Params.Date1),
		logger.String("date2", job.Params.Date2))
	return nil
}

// poll refreshes the provider-side status once. It returns true when the
// request is ready for download and an error when it ended in a failed
// status.
func (o *Orchestrator) poll(ctx context.Context, job *Job) (bool, error) {
	info, err := o.metrica.LogsInfo(ctx, job.Params.CounterID, job.RequestID)
	if err != nil {
		// Some deployments only expose the list endpoint.
		if found := o.findInList(ctx, job.Params.CounterID, job.RequestID); found != nil {
			info = found
		} else {
			return false, err
		}
	}

	job.LastStatus = info.Status
	job.UpdatedAt = o.now()

	switch {
	case metrica.StatusFailed(info.Status):
		return false, apierr.New(apierr.ProviderMetrica, "export_failed",
			fmt.Sprintf("log request %s ended in status %q", job.RequestID, info.Status),
			apierr.HintRestart, apierr.KindFatalResource)
	case metrica.StatusReady(info.Status):
		job.Parts = info.Parts
		if len(job.Parts) == 0 {
			job.Parts = []int{0}
		}
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) findInList(ctx context.Context, counterID int64, requestID string) *metrica.LogRequestInfo {
	infos, err := o.metrica.LogsAllInfo(ctx, counterID)
	if err != nil {
		return nil
	}
	for i := range infos {
		if infos[i].RequestID == requestID {
			return &infos[i]
		}
	}
	return nil
}

// download fetches the remaining parts in order, whole parts only. Once
// the row budget is reached the remaining parts are skipped and the
// result is marked partial.
func (o *Orchestrator) download(ctx context.Context, job *Job) error {
	if job.State != StateDownloading {
		return fmt.Errorf("export: cannot download in state %q", job.State)
	}

	for job.PartsDownloaded < len(job.Parts) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if job.RowBudget > 0 && job.RowsConsumed >= job.RowBudget {
			job.Partial = true
			job.warn(fmt.Sprintf("row budget %d reached after %d of %d parts; remaining parts skipped",
				job.RowBudget, job.PartsDownloaded, len(job.Parts)))
			break
		}

		part := job.Parts[job.PartsDownloaded]
		table, err := o.metrica.LogsDownload(ctx, job.Params.CounterID, job.RequestID, part)
		if err != nil {
			return err
		}
		appended := appendTable(job, table)
		job.PartsDownloaded++
		job.UpdatedAt = o.now()
		o.telemetry.RecordExportRows(appended)
		o.log.Debug("logs part downloaded",
			logger.String("request_id", job.RequestID),
			logger.Int("part", part),
			logger.Int("rows", appended))
	}

	o.transition(job, StateCompleted)
	o.cleanup(ctx, job)
	return nil
}

// cleanup releases the provider-side request. It runs at most once per
// job; failure is a warning, not a job error.
func (o *Orchestrator) cleanup(ctx context.Context, job *Job) {
	if job.cleaned || job.RequestID == "" {
		return
	}
	job.cleaned = true
	if err := o.metrica.LogsClean(ctx, job.Params.CounterID, job.RequestID); err != nil {
		job.warn("provider-side cleanup failed: " + err.Error())
		o.log.Warn("logs clean failed",
			logger.String("request_id", job.RequestID),
			logger.Error(err))
	}
}

// settleError decides what an error does to the job. Transient errors
// leave the state untouched so a later advance can resume; everything
// else lands the job in Failed. Context cancellation lands in Cancelled.
func (o *Orchestrator) settleError(job *Job, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o.transition(job, StateCancelled)
	case apierr.IsTransient(err):
		job.UpdatedAt = o.now()
	default:
		job.FailureReason = err.Error()
		o.transition(job, StateFailed)
	}
	o.store.Put(job)
	return err
}

func (o *Orchestrator) transition(job *Job, next State) {
	if job.State == next {
		return
	}
	o.log.Debug("export transition",
		logger.String("request_id", job.RequestID),
		logger.String("from", string(job.State)),
		logger.String("to", string(next)))
	job.State = next
	job.UpdatedAt = o.now()
	o.telemetry.RecordExportTransition(string(next))
	o.telemetry.SetExportJobsActive(o.store.Active())
}

func (o *Orchestrator) snapshot(job *Job) *AdvanceResult {
	status := StatusPending
	if job.State.Terminal() {
		status = StatusOK
	}
	result := &AdvanceResult{
		Status:          status,
		RequestID:       job.RequestID,
		State:           job.State,
		LastStatus:      job.LastStatus,
		PartsDownloaded: job.PartsDownloaded,
		RowsConsumed:    job.RowsConsumed,
		Partial:         job.Partial,
		Table:           job.Table,
	}
	result.Parts = append(result.Parts, job.Parts...)
	result.Warnings = append(result.Warnings, job.Warnings...)
	return result
}

func (o *Orchestrator) logsParams(job *Job) metrica.LogsParams {
	return metrica.LogsParams{
		CounterID: job.Params.CounterID,
		Date1:     job.Params.Date1,
		Date2:     job.Params.Date2,
		Source:    job.Params.Source,
		Fields:    job.Params.Fields,
	}
}

func (o *Orchestrator) pollDelay(polls int) time.Duration {
	backoff := retry.Config{
		InitialDelay: o.cfg.PollBaseDelay,
		MaxDelay:     o.cfg.PollMaxDelay,
		Multiplier:   2.0,
	}
	return backoff.Delay(polls)
}

func appendTable(job *Job, table report.Table) int {
	if len(job.Table.Columns) == 0 {
		job.Table.Columns = table.Columns
	}
	appended := 0
	for _, row := range table.Rows {
		if len(row) != len(job.Table.Columns) {
			continue
		}
		job.Table.Rows = append(job.Table.Rows, row)
		appended++
	}
	job.RowsConsumed += appended
	return appended
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

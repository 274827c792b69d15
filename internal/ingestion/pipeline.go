package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/apperrors"
	"github.com/osservatorio-istat/osservatorio/internal/categorize"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
	"github.com/osservatorio-istat/osservatorio/internal/metrics"
	"github.com/osservatorio-istat/osservatorio/internal/sdmx"
)

// DatasetResult is the terminal outcome of ingest_single_dataset, per
// spec §4.5.
type DatasetResult struct {
	Success          bool
	Skipped          bool
	ExistingRecords  int64
	Reason           string
	RecordsProcessed int64
	Attempts         int
	Error            string
}

// BatchResult aggregates one ingest_all_priority_datasets() run.
type BatchResult struct {
	Successful int
	Failed     int
	Results    map[string]DatasetResult
	Durations  map[string]time.Duration
}

// Status is the pipeline's process-wide in-memory snapshot, per §4.5
// "status tracking".
type Status struct {
	LastRun           time.Time
	DatasetsProcessed int
	Errors            []string
	TotalRecords      int64
}

const maxStatusErrors = 20

// Config configures a Pipeline.
type Config struct {
	PriorityDatasets []string
	Retries          int
	MaxConcurrent    int
	RequestsPerHour  int
}

// Pipeline is the ingestion pipeline (C5).
type Pipeline struct {
	meta       *metadata.Store
	analytics  *analytics.Store
	client     *guardedClient
	categorize *categorize.Engine

	priority      []string
	retries       int
	maxConcurrent int

	locks sync.Map // dataset_id -> *sync.Mutex

	statusMu sync.Mutex
	status   Status

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// New builds a Pipeline around meta and analyticsStore, wrapping client
// with the circuit breaker and rate limiter described in §4.5.
func New(meta *metadata.Store, analyticsStore *analytics.Store, client Client, cfg Config) *Pipeline {
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Pipeline{
		meta:          meta,
		analytics:     analyticsStore,
		client:        newGuardedClient(client, cfg.RequestsPerHour),
		categorize:    categorize.New(meta),
		priority:      append([]string(nil), cfg.PriorityDatasets...),
		retries:       retries,
		maxConcurrent: maxConcurrent,
		sleep:         sleepCtx,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) lockFor(datasetID string) *sync.Mutex {
	v, _ := p.locks.LoadOrStore(datasetID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// IngestAllPriorityDatasets iterates the priority set. Datasets run
// serially unless maxConcurrent > 1, in which case up to maxConcurrent
// workers run concurrently — no two workers ever hold the same
// dataset_id's lock simultaneously.
func (p *Pipeline) IngestAllPriorityDatasets(ctx context.Context, triggeredBy string) (BatchResult, error) {
	batchID, err := p.meta.Jobs().Start(ctx, triggeredBy)
	if err != nil {
		logging.Err(err).Msg("failed to persist batch run start")
	}

	result := BatchResult{
		Results:   make(map[string]DatasetResult, len(p.priority)),
		Durations: make(map[string]time.Duration, len(p.priority)),
	}

	type outcome struct {
		id  string
		res DatasetResult
		dur time.Duration
	}

	outcomes := make(chan outcome, len(p.priority))
	sem := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup

	for _, id := range p.priority {
		wg.Add(1)
		sem <- struct{}{}
		go func(datasetID string) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			res, _ := p.IngestSingleDataset(ctx, datasetID, p.retries)
			outcomes <- outcome{id: datasetID, res: res, dur: time.Since(start)}
		}(id)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		result.Results[o.id] = o.res
		result.Durations[o.id] = o.dur
		if o.res.Success {
			result.Successful++
		} else {
			result.Failed++
		}
	}

	p.statusMu.Lock()
	p.status.LastRun = p.now()
	p.status.DatasetsProcessed += len(p.priority)
	for id, res := range result.Results {
		p.status.TotalRecords += res.RecordsProcessed
		if !res.Success {
			p.pushError(fmt.Sprintf("%s: %s", id, res.Error))
		}
	}
	p.statusMu.Unlock()

	if batchID != 0 {
		if err := p.meta.Jobs().Finish(ctx, batchID, result.Successful, result.Failed); err != nil {
			logging.Err(err).Msg("failed to persist batch run finish")
		}
	}

	return result, nil
}

// pushError appends to the bounded recent-errors ring. Caller holds statusMu.
func (p *Pipeline) pushError(msg string) {
	p.status.Errors = append(p.status.Errors, msg)
	if len(p.status.Errors) > maxStatusErrors {
		p.status.Errors = p.status.Errors[len(p.status.Errors)-maxStatusErrors:]
	}
}

// IngestSingleDataset runs the full skip/fetch/parse/persist/update/audit
// algorithm for one dataset, retrying steps 2-6 up to retries times with
// exponential backoff on failure.
func (p *Pipeline) IngestSingleDataset(ctx context.Context, datasetID string, retries int) (DatasetResult, error) {
	lock := p.lockFor(datasetID)
	lock.Lock()
	defer lock.Unlock()

	if retries <= 0 {
		retries = p.retries
	}

	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.Ctx(ctx)

	if skip, res := p.skipIfFresh(ctx, datasetID); skip {
		metrics.RecordIngestionAttempt(datasetID, "skipped", 0)
		return res, nil
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		start := time.Now()
		res, err := p.attempt(ctx, datasetID)
		if err == nil {
			res.Attempts = attempt + 1
			metrics.RecordIngestionAttempt(datasetID, "success", time.Since(start))
			return res, nil
		}

		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Str("dataset_id", datasetID).Msg("ingestion attempt failed")
		if attempt < retries {
			metrics.IngestionRetries.WithLabelValues(datasetID).Inc()
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if sleepErr := p.sleep(ctx, backoff); sleepErr != nil {
				lastErr = sleepErr
				break
			}
		}
	}

	metrics.RecordIngestionAttempt(datasetID, "failed", 0)
	p.auditFailure(ctx, datasetID, lastErr)

	return DatasetResult{
		Success:  false,
		Attempts: retries + 1,
		Error:    lastErr.Error(),
	}, lastErr
}

// skipIfFresh implements §4.5 step 1.
func (p *Pipeline) skipIfFresh(ctx context.Context, datasetID string) (bool, DatasetResult) {
	d, err := p.meta.Datasets().Get(ctx, datasetID)
	if err != nil || d == nil || !d.IsActive {
		return false, DatasetResult{}
	}

	count, err := p.analytics.CountByDataset(ctx, datasetID)
	if err != nil || count == 0 {
		return false, DatasetResult{}
	}

	return true, DatasetResult{
		Success:         true,
		Skipped:         true,
		ExistingRecords: count,
		Reason:          "up-to-date",
	}
}

// attempt runs steps 2-6: fetch, parse, ensure schema (already done at
// analytics.Store.New), persist, update metadata, emit audit.
func (p *Pipeline) attempt(ctx context.Context, datasetID string) (DatasetResult, error) {
	fetch, err := p.client.Fetch(ctx, datasetID)
	if err != nil {
		return DatasetResult{}, apperrors.Wrap(apperrors.ErrUpstream, "fetch "+datasetID, err)
	}
	if !fetch.Success {
		msg := fetch.ErrorMessage
		if msg == "" {
			msg = "upstream reported failure"
		}
		return DatasetResult{}, apperrors.Wrap(apperrors.ErrUpstream, "fetch "+datasetID, fmt.Errorf("%s", msg))
	}
	now := p.now()

	// An empty response body is the one documented "empty success" shape
	// (§4.5 step 3): write a single sentinel row so the next
	// skip-if-fresh check succeeds, rather than raising. Any other
	// zero-observation outcome — well-formed XML with no Obs elements —
	// has no documented empty-success signal and is treated as an error.
	var observations []analytics.Observation
	if fetch.Size == 0 || len(fetch.Content) == 0 {
		observations = []analytics.Observation{{
			DatasetID:            datasetID,
			RecordID:             1,
			AdditionalAttributes: map[string]any{"empty_response": true, "status": fetch.Status},
			IngestionTimestamp:   now,
		}}
	} else {
		var truncated bool
		observations, truncated = sdmx.Parse(datasetID, fetch.Content, now)
		if truncated {
			logging.Warn().Str("dataset_id", datasetID).Int("cap", sdmx.MaxObservations).
				Msg("observation count truncated at cap")
		}
		if len(observations) == 0 {
			return DatasetResult{}, apperrors.Wrap(apperrors.ErrMalformedUpstream, "parse "+datasetID,
				fmt.Errorf("no observations parsed from non-empty upstream response"))
		}
	}

	inserted, err := p.analytics.BulkInsert(ctx, observations)
	if err != nil {
		return DatasetResult{}, apperrors.Wrap(apperrors.ErrStorage, "persist "+datasetID, err)
	}

	totalCount, err := p.analytics.CountByDataset(ctx, datasetID)
	if err != nil {
		totalCount = int64(inserted)
	}

	if _, err := p.meta.Datasets().UpdateStats(ctx, datasetID, &totalCount, nil, &now); err != nil {
		return DatasetResult{}, apperrors.Wrap(apperrors.ErrStorage, "update stats "+datasetID, err)
	}

	p.classify(ctx, datasetID)
	p.auditSuccess(ctx, datasetID, int64(inserted))
	metrics.IngestionRecordsProcessed.WithLabelValues(datasetID).Add(float64(inserted))

	return DatasetResult{
		Success:          true,
		RecordsProcessed: int64(inserted),
	}, nil
}

// classify assigns the dataset a category from the active categorization
// ruleset (C11) after a successful ingest. Best-effort: a classification
// failure never fails the ingest itself.
func (p *Pipeline) classify(ctx context.Context, datasetID string) {
	d, err := p.meta.Datasets().Get(ctx, datasetID)
	if err != nil || d == nil {
		return
	}
	if _, err := p.categorize.ClassifyAndStore(ctx, datasetID, d.Name, d.Description); err != nil {
		logging.Err(err).Str("dataset_id", datasetID).Msg("failed to classify dataset")
	}
}

func (p *Pipeline) auditSuccess(ctx context.Context, datasetID string, records int64) {
	p.audit(ctx, datasetID, true, nil, map[string]any{"records_processed": records})
}

func (p *Pipeline) auditFailure(ctx context.Context, datasetID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.audit(ctx, datasetID, false, &msg, nil)
}

func (p *Pipeline) audit(ctx context.Context, datasetID string, success bool, errMsg *string, details map[string]any) {
	resourceID := datasetID
	_, err := p.meta.Audit().LogAction(ctx, metadata.AuditEvent{
		Action:       "ingest_dataset",
		ResourceType: "dataset",
		ResourceID:   &resourceID,
		Success:      success,
		ErrorMessage: errMsg,
		Details:      details,
	})
	if err != nil {
		logging.Err(err).Str("dataset_id", datasetID).Msg("failed to write ingestion audit event")
	}
	metrics.RecordAuditEvent("ingest_dataset", success)
}

// GetIngestionStatus returns a snapshot of the pipeline's in-memory
// status map.
func (p *Pipeline) GetIngestionStatus() Status {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	return Status{
		LastRun:           p.status.LastRun,
		DatasetsProcessed: p.status.DatasetsProcessed,
		Errors:            append([]string(nil), p.status.Errors...),
		TotalRecords:      p.status.TotalRecords,
	}
}

// HealthCheck reports component reachability without performing a
// fetch, per §4.5.
func (p *Pipeline) HealthCheck(ctx context.Context) error {
	if err := p.meta.Ping(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "metadata store unreachable", err)
	}
	if err := p.analytics.Ping(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "analytics store unreachable", err)
	}
	return nil
}

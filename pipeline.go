package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.elastic.co/apm"
	"go.uber.org/zap"
)

type AlertSource interface {
	FetchAlerts(ctx context.Context, patientID string) ([]RawAlertRecord, error)
}

type PipelineOptions struct {
	Debounce time.Duration
	CacheTTL time.Duration
	// Retries after the first attempt. Zero means the default, negative means none.
	Retries   int
	BaseDelay time.Duration
	// Zero means the default, negative means no jitter
	MaxJitter      time.Duration
	AttemptTimeout time.Duration
}

var pipelineDefaults = PipelineOptions{
	Debounce:       200 * time.Millisecond,
	CacheTTL:       30 * time.Second,
	Retries:        3,
	BaseDelay:      600 * time.Millisecond,
	MaxJitter:      250 * time.Millisecond,
	AttemptTimeout: 12 * time.Second,
}

func (o PipelineOptions) withDefaults() PipelineOptions {
	if o.Debounce <= 0 {
		o.Debounce = pipelineDefaults.Debounce
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = pipelineDefaults.CacheTTL
	}
	if o.Retries == 0 {
		o.Retries = pipelineDefaults.Retries
	} else if o.Retries < 0 {
		o.Retries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = pipelineDefaults.BaseDelay
	}
	if o.MaxJitter == 0 {
		o.MaxJitter = pipelineDefaults.MaxJitter
	} else if o.MaxJitter < 0 {
		o.MaxJitter = 0
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = pipelineDefaults.AttemptTimeout
	}
	return o
}

type PipelineStatus int

const (
	StatusIdle PipelineStatus = iota
	StatusDebouncing
	StatusFetching
	StatusSucceeded
	StatusAborted
	StatusFailed
)

func (s PipelineStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDebouncing:
		return "debouncing"
	case StatusFetching:
		return "fetching"
	case StatusSucceeded:
		return "succeeded"
	case StatusAborted:
		return "aborted"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

type cacheEntry struct {
	timestamp time.Time
	data      ClassifiedAlertSet
}

// PipelineState is the only mutable state of a pipeline. The generation
// counter identifies the live request; anything carrying an older generation
// has been superseded and may not touch the cache.
type PipelineState struct {
	mu         sync.Mutex
	status     PipelineStatus
	generation uint64
	cancel     context.CancelFunc
	cache      map[string]cacheEntry
}

// LoadRequest is one evaluation request from the presenter.
type LoadRequest struct {
	PatientID string
	Patient   PatientContext
	// Records the presenter extracted locally, used when the upstream fails
	Local []RawAlertRecord
	Aux   AuxData
}

// Pipeline acquires alert records for one presenter session and feeds them to
// the builder. Calls may come from any goroutine; a newer call always
// supersedes an older one.
type Pipeline struct {
	source  AlertSource
	windows *VigencyConfigProvider
	builder *AlertBuilder
	opts    PipelineOptions
	log     *zap.Logger
	state   *PipelineState

	now    func() time.Time
	jitter func(max time.Duration) time.Duration
}

func NewPipeline(source AlertSource, windows *VigencyConfigProvider, builder *AlertBuilder, opts PipelineOptions, log *zap.Logger) *Pipeline {
	return &Pipeline{
		source:  source,
		windows: windows,
		builder: builder,
		opts:    opts.withDefaults(),
		log:     log,
		state: &PipelineState{
			cache: map[string]cacheEntry{},
		},
		now:    time.Now,
		jitter: randomJitter,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// status returns the state machine position of the pipeline.
func (p *Pipeline) status() PipelineStatus {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	return p.state.status
}

// Load runs one evaluation. The only error it returns is ErrCanceled, when the
// call was superseded or its context ended; every other failure degrades to
// an evaluation built from local or empty data.
func (p *Pipeline) Load(ctx context.Context, req LoadRequest) (*Evaluation, error) {
	// Warm the window table without blocking the debounce
	if p.windows != nil {
		go p.windows.Load(ctx)
	}

	callCtx, gen, cancel := p.begin(ctx)
	defer cancel()

	log := p.log.With(zap.String("patient", req.PatientID), zap.Uint64("generation", gen))

	// Debounce, restarted by every newer call
	timer := time.NewTimer(p.opts.Debounce)
	select {
	case <-callCtx.Done():
		timer.Stop()
		return nil, p.abort(gen, log, callCtx.Err())
	case <-timer.C:
	}

	// Cache fast path
	if set, ok := p.cached(req.PatientID); ok {
		if !p.transition(gen, StatusSucceeded) {
			return nil, p.abort(gen, log, context.Canceled)
		}
		log.Debug("Serving alerts from cache")
		return p.deliver(callCtx, gen, log, req, set, SourceCache, StatusSucceeded)
	}

	p.transition(gen, StatusFetching)
	records, err := p.fetchWithRetry(callCtx, req.PatientID, log)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, p.abort(gen, log, err)
		}
		return p.degrade(callCtx, gen, req, log, err)
	}

	set := classifyRecords(records)

	// Cache only if this call is still the live one
	if !p.store(gen, req.PatientID, set) {
		return nil, p.abort(gen, log, context.Canceled)
	}
	log.Info("Alerts loaded", zap.Int("records", len(records)))

	return p.deliver(callCtx, gen, log, req, set, SourceNetwork, StatusSucceeded)
}

// begin registers a new live call and cancels the previous one.
func (p *Pipeline) begin(ctx context.Context) (context.Context, uint64, context.CancelFunc) {
	callCtx, cancel := context.WithCancel(ctx)

	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	if p.state.cancel != nil {
		p.state.cancel()
	}
	p.state.generation++
	p.state.cancel = cancel
	p.state.status = StatusDebouncing

	return callCtx, p.state.generation, cancel
}

func (p *Pipeline) transition(gen uint64, status PipelineStatus) bool {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if gen != p.state.generation {
		return false
	}
	p.state.status = status
	return true
}

// complete records a terminal outcome and returns the machine to idle.
func (p *Pipeline) complete(gen uint64, outcome PipelineStatus) bool {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()
	if gen != p.state.generation {
		return false
	}
	p.log.Debug("Pipeline finished", zap.Uint64("generation", gen), zap.Stringer("outcome", outcome))
	p.state.status = StatusIdle
	p.state.cancel = nil
	return true
}

func (p *Pipeline) abort(gen uint64, log *zap.Logger, cause error) error {
	p.complete(gen, StatusAborted)
	log.Debug("Request canceled", zap.NamedError("cause", cause))
	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}

func (p *Pipeline) cached(patientID string) (ClassifiedAlertSet, bool) {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	entry, ok := p.state.cache[patientID]
	if !ok {
		return ClassifiedAlertSet{}, false
	}
	if p.now().Sub(entry.timestamp) >= p.opts.CacheTTL {
		delete(p.state.cache, patientID)
		return ClassifiedAlertSet{}, false
	}
	return entry.data, true
}

func (p *Pipeline) store(gen uint64, patientID string, set ClassifiedAlertSet) bool {
	p.state.mu.Lock()
	defer p.state.mu.Unlock()

	if gen != p.state.generation {
		return false
	}

	// Drop expired entries while holding the lock anyway
	now := p.now()
	for key, entry := range p.state.cache {
		if now.Sub(entry.timestamp) >= p.opts.CacheTTL {
			delete(p.state.cache, key)
		}
	}
	p.state.cache[patientID] = cacheEntry{timestamp: now, data: set}

	// Stays registered as the live call until the build is delivered
	p.state.status = StatusSucceeded
	return true
}

func (p *Pipeline) fetchWithRetry(ctx context.Context, patientID string, log *zap.Logger) ([]RawAlertRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.Retries; attempt++ {
		records, err := p.fetchAttempt(ctx, patientID)
		if err == nil {
			return records, nil
		}
		lastErr = err

		// Superseded or caller gone
		if ctx.Err() != nil {
			return nil, err
		}

		// A malformed payload will not fix itself on retry
		if errors.Is(err, ErrParse) {
			return nil, err
		}

		if attempt == p.opts.Retries {
			break
		}

		delay := p.opts.BaseDelay*time.Duration(1<<attempt) + p.jitter(p.opts.MaxJitter)
		log.Warn("Alert fetch failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// fetchAttempt bounds a single attempt; running out of time is a network failure.
func (p *Pipeline) fetchAttempt(ctx context.Context, patientID string) ([]RawAlertRecord, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
	defer cancel()

	records, err := p.source.FetchAlerts(attemptCtx, patientID)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: attempt timed out after %s", ErrNetwork, p.opts.AttemptTimeout)
	}
	return records, err
}

// degrade builds from the presenter's local records, or from nothing, so every
// eligible rule still renders.
func (p *Pipeline) degrade(ctx context.Context, gen uint64, req LoadRequest, log *zap.Logger, cause error) (*Evaluation, error) {
	if !p.transition(gen, StatusFailed) {
		return nil, p.abort(gen, log, context.Canceled)
	}

	source := SourceEmpty
	set := newClassifiedAlertSet()
	if len(req.Local) > 0 {
		source = SourceLocal
		set = classifyRecords(req.Local)
	}

	logger(ctx, fmt.Errorf("%v (patient: %s, fallback: %s)", cause, req.PatientID, source))

	return p.deliver(ctx, gen, log, req, set, source, StatusFailed)
}

// deliver builds while the call is still registered, so a newer call can
// cancel it, and hands the result out only if no newer call arrived meanwhile.
func (p *Pipeline) deliver(ctx context.Context, gen uint64, log *zap.Logger, req LoadRequest, set ClassifiedAlertSet, source EvaluationSource, outcome PipelineStatus) (*Evaluation, error) {
	ev := p.evaluate(ctx, req, set, source, outcome == StatusFailed)
	if !p.complete(gen, outcome) {
		return nil, p.abort(gen, log, context.Canceled)
	}
	return ev, nil
}

func (p *Pipeline) evaluate(ctx context.Context, req LoadRequest, set ClassifiedAlertSet, source EvaluationSource, degraded bool) *Evaluation {
	// Create span
	span, ctx := apm.StartSpan(ctx, "Evaluate Rules", "AlertBuilder")
	defer span.End()

	return &Evaluation{
		ID:          uuid.Must(uuid.NewV7()).String(),
		PatientID:   req.PatientID,
		Source:      source,
		Degraded:    degraded,
		Records:     set,
		Alerts:      p.builder.Build(ctx, req.Patient, set, req.Aux),
		EvaluatedAt: p.now(),
	}
}

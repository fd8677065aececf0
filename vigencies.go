package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.elastic.co/apm"
	"go.uber.org/zap"
)

// Window lengths in days used when the remote table cannot be loaded
var defaultVigencias = map[string]int{
	"pap":          1095,
	"mamografia":   730,
	"psa":          365,
	"examen_anual": 365,
	"adulto_mayor": 365,
}

const vigenciasLoadTimeout = 10 * time.Second

type WindowSource interface {
	FetchVigencias(ctx context.Context) (map[string]int, error)
}

// VigencyConfigProvider loads the per exam window table once per process.
// The first successful response is kept for the life of the process; a
// failed load falls back to the defaults and is not retried.
type VigencyConfigProvider struct {
	source   WindowSource
	defaults map[string]int
	log      *zap.Logger

	once    sync.Once
	windows map[string]int
	remote  bool
}

func NewVigencyConfigProvider(source WindowSource, defaults map[string]int, log *zap.Logger) *VigencyConfigProvider {
	if len(defaults) == 0 {
		defaults = defaultVigencias
	}
	return &VigencyConfigProvider{
		source:   source,
		defaults: copyWindows(defaults),
		log:      log,
	}
}

// Load returns the effective window table, fetching it on first use.
func (p *VigencyConfigProvider) Load(ctx context.Context) map[string]int {
	p.once.Do(func() {
		// Load is shared by every caller, so one caller's cancellation must not
		// pin the defaults for the whole process
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), vigenciasLoadTimeout)
		defer cancel()

		// Create span
		span, loadCtx := apm.StartSpan(loadCtx, "Load Vigency Windows", "Config")
		defer span.End()

		remote, err := p.fetch(loadCtx)
		if err != nil {
			p.log.Warn("Using default vigency windows", zap.Error(err))
			p.windows = copyWindows(p.defaults)
			return
		}

		// Remote values take precedence, defaults fill the gaps
		windows := copyWindows(p.defaults)
		for examType, days := range remote {
			windows[examType] = days
		}
		p.windows = windows
		p.remote = true
		p.log.Info("Loaded remote vigency windows", zap.Int("count", len(remote)))
	})
	return copyWindows(p.windows)
}

func (p *VigencyConfigProvider) fetch(ctx context.Context) (map[string]int, error) {
	if p.source == nil {
		return nil, fmt.Errorf("%w: no remote source configured", ErrConfigurationUnavailable)
	}

	remote, err := p.source.FetchVigencias(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigurationUnavailable, err)
	}
	if len(remote) == 0 {
		return nil, fmt.Errorf("%w: empty window table", ErrConfigurationUnavailable)
	}
	for examType, days := range remote {
		if days <= 0 {
			return nil, fmt.Errorf("%w: non positive window for %q", ErrConfigurationUnavailable, examType)
		}
	}
	return remote, nil
}

// Window returns the window for an exam type, or false when none is known.
func (p *VigencyConfigProvider) Window(ctx context.Context, examType string) (int, bool) {
	windows := p.Load(ctx)
	days, ok := windows[examType]
	return days, ok
}

// Remote reports whether the table came from the remote endpoint.
func (p *VigencyConfigProvider) Remote(ctx context.Context) bool {
	p.Load(ctx)
	return p.remote
}

func copyWindows(m map[string]int) map[string]int {
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

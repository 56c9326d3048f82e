// Package importer orchestrates one import run end to end: parse, match,
// enhance, review, transform, and batched writes. Runs are tracked in memory
// for the duration of the review and write phases plus a retention window.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krwhynot/CRM-sub001/internal/catalog"
	"github.com/krwhynot/CRM-sub001/internal/csvio"
	"github.com/krwhynot/CRM-sub001/internal/enhance"
	"github.com/krwhynot/CRM-sub001/internal/mapper"
	"github.com/krwhynot/CRM-sub001/internal/store"
)

// Config carries the tunable parameters of the pipeline. Zero values are
// replaced with defaults by Sanitize.
type Config struct {
	BatchSize       int
	BatchPause      time.Duration
	AutoAccept      float64
	EnhancerTrigger float64
	MaxConcurrent   int
	MaxSampleRows   int
	MaxActiveRuns   int
	RunTimeout      time.Duration
	Retention       time.Duration
	ParseOptions    csvio.Options

	// Matcher carries the header-matching thresholds. Unset fields fall back
	// to mapper.DefaultConfig.
	Matcher mapper.Config
}

// Sanitize fills unset fields with defaults.
func (c Config) Sanitize() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.BatchPause <= 0 {
		c.BatchPause = 200 * time.Millisecond
	}
	if c.AutoAccept <= 0 {
		c.AutoAccept = 0.95
	}
	if c.EnhancerTrigger <= 0 {
		c.EnhancerTrigger = 0.9
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxSampleRows <= 0 {
		c.MaxSampleRows = 5
	}
	if c.MaxActiveRuns <= 0 {
		c.MaxActiveRuns = 4
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 5 * time.Minute
	}
	if c.ParseOptions.MaxBytes <= 0 {
		c.ParseOptions = csvio.DefaultOptions()
	}
	return c
}

// Service owns all active import runs.
type Service struct {
	store     store.Store
	cat       *catalog.Catalog
	suggester enhance.Suggester
	cfg       Config
	logger    *slog.Logger
	limiter   *runLimiter

	mu   sync.RWMutex
	runs map[string]*run
}

type run struct {
	ID       string
	FileName string
	Cancel   context.CancelFunc
	Done     chan struct{}

	file *csvio.File
	gate *mapper.ReviewGate

	Progress   Progress
	Listeners  []chan Progress
	ListenerMu sync.Mutex

	// stateMu guards Progress and gate mutations from concurrent API calls.
	stateMu sync.Mutex
	started bool
}

// NewService creates the import service. suggester may be nil when no
// external mapping service is configured.
func NewService(st store.Store, cat *catalog.Catalog, suggester enhance.Suggester, cfg Config, logger *slog.Logger) *Service {
	if suggester == nil {
		suggester = enhance.NopSuggester{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Sanitize()
	return &Service{
		store:     st,
		cat:       cat,
		suggester: suggester,
		cfg:       cfg,
		logger:    logger,
		limiter:   newRunLimiter(cfg.MaxActiveRuns),
		runs:      make(map[string]*run),
	}
}

// Catalog returns the field catalogue the service imports into.
func (s *Service) Catalog() *catalog.Catalog { return s.cat }

// CreateImport parses the file, proposes mappings, and leaves the run parked
// at the review gate. Nothing is written until Start.
func (s *Service) CreateImport(ctx context.Context, fileName string, data []byte) (string, []mapper.HeaderReview, error) {
	file, err := csvio.Parse(data, s.cfg.ParseOptions)
	if err != nil {
		return "", nil, err
	}

	matcher := mapper.NewMatcher(s.cat, s.cfg.Matcher)
	set := matcher.Match(file.Headers)

	s.enhanceMappings(ctx, file, &set)

	gate := mapper.NewReviewGate(s.cat, s.cfg.AutoAccept, set)

	r := &run{
		ID:       uuid.New().String(),
		FileName: fileName,
		Done:     make(chan struct{}),
		file:     file,
		gate:     gate,
		Progress: Progress{Phase: PhaseAwaitingReview},
	}
	r.Progress.ImportID = r.ID
	r.Progress.Outcome.TotalRows = len(file.Records)

	s.mu.Lock()
	s.runs[r.ID] = r
	s.mu.Unlock()

	s.logger.Info("import created",
		"import_id", r.ID,
		"file", fileName,
		"rows", len(file.Records),
		"headers", len(file.Headers),
	)
	return r.ID, gate.Reviews(), nil
}

// enhanceMappings asks the external service about headers the matcher was
// not confident on, and merges any usable suggestions. Failures only degrade
// mapping quality, never the run.
func (s *Service) enhanceMappings(ctx context.Context, file *csvio.File, set *mapper.MappingSet) {
	var uncertain []csvio.HeaderCandidate
	for _, h := range file.Headers {
		fm, ok := set.Mappings[h.Cleaned]
		if !ok || fm.Confidence < s.cfg.EnhancerTrigger {
			uncertain = append(uncertain, h)
		}
	}
	if len(uncertain) == 0 {
		return
	}

	sampleRows := make([][]string, 0, s.cfg.MaxSampleRows)
	for i, rec := range file.Records {
		if i >= s.cfg.MaxSampleRows {
			break
		}
		sampleRows = append(sampleRows, rec.Cells)
	}

	suggestions := enhance.Gather(ctx, s.suggester, uncertain, sampleRows, s.cat, s.cfg.MaxConcurrent, s.logger)
	for _, sg := range suggestions {
		set.Merge(mapper.FieldMapping{
			SourceHeader: sg.SourceHeader,
			TargetField:  sg.TargetField,
			Confidence:   sg.Confidence,
			Rationale:    sg.Rationale,
			Source:       mapper.SourceEnhancer,
		})
	}
}

func (s *Service) get(importID string) (*run, error) {
	s.mu.RLock()
	r, ok := s.runs[importID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("import not found: %s", importID)
	}
	return r, nil
}

// Mappings returns the current review state for every header.
func (s *Service) Mappings(importID string) ([]mapper.HeaderReview, error) {
	r, err := s.get(importID)
	if err != nil {
		return nil, err
	}
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.gate.Reviews(), nil
}

// ConfirmMapping accepts the proposed mapping for a header.
func (s *Service) ConfirmMapping(importID, header string) error {
	return s.withGate(importID, func(g *mapper.ReviewGate) error {
		return g.Confirm(header)
	})
}

// OverrideMapping points a header at a different catalogue field.
func (s *Service) OverrideMapping(importID, header, targetField string) error {
	return s.withGate(importID, func(g *mapper.ReviewGate) error {
		return g.Override(header, targetField)
	})
}

// RejectMapping marks a header as ignored.
func (s *Service) RejectMapping(importID, header string) error {
	return s.withGate(importID, func(g *mapper.ReviewGate) error {
		return g.Reject(header)
	})
}

func (s *Service) withGate(importID string, fn func(*mapper.ReviewGate) error) error {
	r, err := s.get(importID)
	if err != nil {
		return err
	}
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.started {
		return fmt.Errorf("import %s already started", importID)
	}
	return fn(r.gate)
}

// Start validates the review gate and launches the write pipeline in the
// background. Returns a MissingRequiredError when a required field has no
// confirmed mapping; nothing is written in that case.
func (s *Service) Start(importID string) error {
	r, err := s.get(importID)
	if err != nil {
		return err
	}

	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.started {
		return fmt.Errorf("import %s already started", importID)
	}
	if err := r.gate.Check(); err != nil {
		return err
	}
	if !s.limiter.tryAcquire() {
		return ErrTooManyRuns
	}
	r.started = true
	r.Progress.Phase = PhaseWriting

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	r.Cancel = cancel

	go s.process(runCtx, r)
	return nil
}

// SubscribeProgress returns a channel receiving progress snapshots. The
// channel is closed when the run finishes.
func (s *Service) SubscribeProgress(importID string) (<-chan Progress, error) {
	r, err := s.get(importID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 10)
	r.ListenerMu.Lock()
	select {
	case <-r.Done:
		// Run already finished; deliver the final snapshot and close.
		ch <- r.snapshot()
		close(ch)
	default:
		r.Listeners = append(r.Listeners, ch)
		select {
		case ch <- r.snapshot():
		default:
		}
	}
	r.ListenerMu.Unlock()
	return ch, nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(importID string) (Progress, error) {
	r, err := s.get(importID)
	if err != nil {
		return Progress{}, err
	}
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.Progress, nil
}

// Result blocks until the run finishes and returns the final outcome.
func (s *Service) Result(ctx context.Context, importID string) (Outcome, error) {
	r, err := s.get(importID)
	if err != nil {
		return Outcome{}, err
	}
	select {
	case <-r.Done:
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.Progress.Outcome, nil
}

// Cancel requests a stop at the next batch boundary. The in-flight batch
// finishes first.
func (s *Service) Cancel(importID string) error {
	r, err := s.get(importID)
	if err != nil {
		return err
	}
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.Cancel == nil {
		return fmt.Errorf("import %s has not started", importID)
	}
	r.Cancel()
	return nil
}

func (r *run) snapshot() Progress {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	return r.Progress
}

// notifyProgress sends the current snapshot to all listeners. Slow listeners
// miss intermediate updates rather than blocking the pipeline.
func (r *run) notifyProgress() {
	p := r.snapshot()
	r.ListenerMu.Lock()
	defer r.ListenerMu.Unlock()
	for _, ch := range r.Listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

func (r *run) closeListeners() {
	r.ListenerMu.Lock()
	defer r.ListenerMu.Unlock()
	for _, ch := range r.Listeners {
		close(ch)
	}
	r.Listeners = nil
}

// ActiveRuns reports how many runs are currently in the write phase.
func (s *Service) ActiveRuns() int { return s.limiter.activeRuns() }

// Drain blocks until all in-flight runs finish or ctx expires. Call during
// shutdown after the HTTP listener stops accepting work.
func (s *Service) Drain(ctx context.Context) error { return s.limiter.drain(ctx) }

// cleanup removes the run from tracking after a delay.
func (s *Service) cleanup(importID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, importID)
		s.mu.Unlock()
	})
}

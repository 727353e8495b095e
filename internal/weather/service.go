package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoopConfig controls pacing of multi-request fetches.
type LoopConfig struct {
	// RequestDelay is waited after every request except the last.
	RequestDelay time.Duration
	// DefaultRetryAfter is the 429 wait when the provider sends no Retry-After.
	DefaultRetryAfter time.Duration
	// MaxRateLimitRetries caps 429 retries per request. Values below 1 are treated as 1.
	MaxRateLimitRetries int
}

// Service runs fetches against the configured providers and publishes run
// state to the store. At most one run is active at a time.
type Service struct {
	store     Store
	providers map[Source]Provider
	loc       Location
	cfg       LoopConfig
	logger    *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	mu     sync.Mutex
	active string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used to compute date ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSleep overrides how the service waits between requests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.sleep = fn }
}

// NewService creates a new Service.
func NewService(store Store, loc Location, providers map[Source]Provider, cfg LoopConfig, opts ...Option) *Service {
	if cfg.MaxRateLimitRetries < 1 {
		cfg.MaxRateLimitRetries = 1
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = DefaultRetryAfter
	}

	s := &Service{
		store:     store,
		providers: providers,
		loc:       loc,
		cfg:       cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
		sleep:     sleepContext,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sources lists the sources with a registered provider, sorted by name.
func (s *Service) Sources() []Source {
	out := make([]Source, 0, len(s.providers))
	for src := range s.providers {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Start begins a fetch in the background and returns the initial run state.
// Progress is published to the store after every step.
func (s *Service) Start(ctx context.Context, source Source) (Run, error) {
	run, p, err := s.begin(source)
	if err != nil {
		return Run{}, err
	}
	initial := run.Snapshot()

	go func() {
		_ = s.execute(ctx, run, p)
	}()

	return initial, nil
}

// Fetch runs a fetch to completion and returns the final run state. A
// non-nil error means the run failed; its Error field holds the user message.
func (s *Service) Fetch(ctx context.Context, source Source) (Run, error) {
	run, p, err := s.begin(source)
	if err != nil {
		return Run{}, err
	}
	err = s.execute(ctx, run, p)
	return run.Snapshot(), err
}

// GetRun delegates to the underlying store.
func (s *Service) GetRun(id string) (Run, error) {
	return s.store.GetRun(id)
}

// Latest delegates to the underlying store.
func (s *Service) Latest() (Run, error) {
	return s.store.Latest()
}

// begin validates the source and claims the single active slot.
func (s *Service) begin(source Source) (*Run, Provider, error) {
	p, ok := s.providers[source]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	if cc, ok := p.(CredentialChecker); ok {
		if err := cc.CheckCredentials(); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", p.Name(), err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return nil, nil, ErrRunInProgress
	}

	now := s.now()
	run := &Run{
		ID:        s.newID(),
		Source:    source,
		Provider:  p.Name(),
		Location:  s.loc,
		Range:     p.Window(now, s.loc),
		Status:    RunRunning,
		Records:   []TemperatureRecord{},
		StartedAt: now.UTC(),
	}
	s.active = run.ID
	s.store.SaveRun(run.Snapshot())
	return run, p, nil
}

func (s *Service) execute(ctx context.Context, run *Run, p Provider) error {
	defer func() {
		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
	}()

	log := s.logger.With(
		zap.String("run_id", run.ID),
		zap.String("provider", run.Provider),
		zap.String("location", s.loc.Key()),
	)
	log.Info("fetch started",
		zap.String("start", run.Range.Start.Format(isoDateLayout)),
		zap.String("end", run.Range.End.Format(isoDateLayout)))

	var err error
	switch prov := p.(type) {
	case DayProvider:
		err = s.fetchDays(ctx, run, prov, log)
	case RangeProvider:
		err = s.fetchRange(ctx, run, prov, log)
	default:
		err = fmt.Errorf("provider %s supports neither range nor per-day fetches", p.Name())
	}

	finished := s.now().UTC()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = RunFailed
		run.Error = UserMessage(err)
		log.Error("fetch failed", zap.Error(err))
	} else {
		run.Status = RunCompleted
		log.Info("fetch completed", zap.Int("records", len(run.Records)))
	}
	s.store.SaveRun(run.Snapshot())
	return err
}

// fetchRange performs the single request of a range provider, waiting out
// rate limits. Any other failure fails the run.
func (s *Service) fetchRange(ctx context.Context, run *Run, p RangeProvider, log *zap.Logger) error {
	run.Total = 1
	s.store.SaveRun(run.Snapshot())

	var records []TemperatureRecord
	err := s.withRateLimitRetry(ctx, log, func() error {
		var ferr error
		records, ferr = p.FetchRange(ctx, run.Location, run.Range)
		return ferr
	})
	if err != nil {
		return err
	}

	run.Records = SortRecords(records)
	run.Completed = 1
	return nil
}

// fetchDays walks the range one day at a time. A failed day becomes an error
// sentinel and the loop moves on.
func (s *Service) fetchDays(ctx context.Context, run *Run, p DayProvider, log *zap.Logger) error {
	days := run.Range.Days()
	run.Total = len(days)
	s.store.SaveRun(run.Snapshot())

	for i, day := range days {
		if err := ctx.Err(); err != nil {
			return err
		}

		var rec TemperatureRecord
		err := s.withRateLimitRetry(ctx, log, func() error {
			var ferr error
			rec, ferr = p.FetchDay(ctx, run.Location, day)
			return ferr
		})
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			log.Warn("day fetch failed",
				zap.String("day", day.Format(isoDateLayout)),
				zap.Error(err))
			rec = ErrorRecord(day, Categorize(err).Error())
		}

		run.Records = append(run.Records, rec)
		run.Completed = i + 1
		s.store.SaveRun(run.Snapshot())

		if i < len(days)-1 {
			if err := s.sleep(ctx, s.cfg.RequestDelay); err != nil {
				return err
			}
		}
	}

	run.Records = SortRecords(run.Records)
	return nil
}

// withRateLimitRetry calls fn, and on a 429 waits the advertised duration and
// calls it again, up to MaxRateLimitRetries times.
func (s *Service) withRateLimitRetry(ctx context.Context, log *zap.Logger, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rl *RateLimitedError
		if !errors.As(err, &rl) || attempt >= s.cfg.MaxRateLimitRetries {
			return err
		}

		wait := rl.Wait(s.cfg.DefaultRetryAfter)
		log.Info("rate limited; waiting before retry",
			zap.Duration("wait", wait),
			zap.Int("attempt", attempt+1))
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package feed

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/br0z1/social-media-app/internal/logger"
	"github.com/br0z1/social-media-app/internal/metrics"
	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/repository"
)

const (
	// MaxQueryAttempts bounds the storage calls one refill may issue.
	MaxQueryAttempts = 20
	// QueryTimeout applies to every individual storage call.
	QueryTimeout = 5 * time.Second
	// QueryLimit caps the rows a bucket query returns.
	QueryLimit = 100
	// MaxTimeRange is the widest window an expanded query may cover.
	MaxTimeRange = 365 * day
	// ExpansionFactor widens an empty window before falling back further.
	ExpansionFactor = 10
)

// BucketStore is the storage the sampler reads from. Results are newest
// first; a zero minEngagement matches every level.
type BucketStore interface {
	QueryBucketTimeRange(ctx context.Context, bucket string, startMs, endMs int64, limit int, minEngagement models.EngagementLevel) ([]models.PostSummary, error)
	BucketExistsAnyTime(ctx context.Context, bucket string) (bool, error)
}

// Batch is one delivery of post ids.
type Batch struct {
	PostIDs   []string `json:"postIds"`
	Exhausted bool     `json:"exhausted"`
}

type tier string

const (
	tierPrimary  tier = "primary"
	tierExpanded tier = "expanded"
	tierRelaxed  tier = "relaxed"
	tierDeep     tier = "deep"
	tierProbe    tier = "probe"
)

type existence int

const (
	existenceUnknown existence = iota
	existenceEmpty
	existencePopulated
)

// Sampler fills sessions with post ids drawn from random buckets of their
// sphere, favoring recent and engaging posts.
type Sampler struct {
	store        BucketStore
	rng          Random
	now          func() time.Time
	queryTimeout time.Duration
	maxAttempts  int
	target       int
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithRandom replaces the random source.
func WithRandom(rng Random) Option {
	return func(s *Sampler) { s.rng = rng }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithQueryTimeout overrides QueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Sampler) { s.queryTimeout = d }
}

// WithMaxAttempts overrides MaxQueryAttempts.
func WithMaxAttempts(n int) Option {
	return func(s *Sampler) { s.maxAttempts = n }
}

// NewSampler creates a sampler over store.
func NewSampler(store BucketStore, opts ...Option) *Sampler {
	s := &Sampler{
		store:        store,
		rng:          NewRandom(time.Now().UnixNano()),
		now:          time.Now,
		queryTimeout: QueryTimeout,
		maxAttempts:  MaxQueryAttempts,
		target:       TargetOnDeck,
		metrics:      metrics.Get(),
		tracer:       otel.Tracer("github.com/br0z1/social-media-app/internal/feed"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextBatch refills the session and drains up to count ids from it. A count
// outside [1, TargetOnDeck] means TargetOnDeck.
func (p *Sampler) NextBatch(ctx context.Context, s *Session, count int) (Batch, error) {
	if count <= 0 || count > p.target {
		count = p.target
	}
	if _, err := p.Refill(ctx, s); err != nil {
		return Batch{}, err
	}

	ids := s.Drain(count)
	p.metrics.FeedBatchSize.Observe(float64(len(ids)))
	return Batch{
		PostIDs:   ids,
		Exhausted: len(ids) == 0 && s.State() == StateExhausted,
	}, nil
}

// Refill tops the session's on-deck list up towards TargetOnDeck and returns
// it. It gives up after MaxQueryAttempts storage calls, when no bucket is
// left or when ctx is done, returning whatever it collected. Storage errors
// and timeouts count as empty results.
func (p *Sampler) Refill(ctx context.Context, s *Session) ([]string, error) {
	s.refillMu.Lock()
	defer s.refillMu.Unlock()

	ctx, span := p.tracer.Start(ctx, "feed.refill",
		trace.WithAttributes(attribute.String("feed.session_id", s.ID)))
	defer span.End()

	started := time.Now()
	defer func() {
		p.metrics.FeedRefillDuration.Observe(time.Since(started).Seconds())
	}()

	gen, full, err := s.begin(p.target)
	if err != nil {
		return nil, err
	}
	if full {
		return s.OnDeck(), nil
	}

	attempts := 0
	for attempts < p.maxAttempts && ctx.Err() == nil {
		more, err := s.needsMore(gen, p.target)
		if err != nil {
			return nil, p.fail(span, err)
		}
		if !more {
			break
		}

		bucket, err := s.pickBucket(gen, p.rng)
		if err != nil {
			return nil, p.fail(span, err)
		}
		if bucket == "" {
			break
		}

		issued, err := p.sampleBucket(ctx, s, gen, bucket, p.maxAttempts-attempts)
		attempts += issued
		if err != nil {
			return nil, p.fail(span, err)
		}
	}

	ids, exhausted, err := s.finish(gen, p.target)
	if err != nil {
		return nil, p.fail(span, err)
	}
	if exhausted {
		p.metrics.FeedSessionsExhausted.Inc()
		logger.Log.Info("Feed session exhausted", logger.WithSessionID(s.ID))
	}

	span.SetAttributes(
		attribute.Int("feed.attempts", attempts),
		attribute.Int("feed.on_deck", len(ids)),
	)
	logger.Log.Debug("Refill finished",
		logger.WithSessionID(s.ID),
		zap.Int("attempts", attempts),
		zap.Int("on_deck", len(ids)),
	)
	return ids, nil
}

// sampleBucket runs the tier ladder for one bucket and returns how many
// storage calls it made, never more than budget:
//
//	primary   random window, random engagement floor
//	expanded  window x10 (max one year), same floor; keeps one random id
//	probe     any post at all? no -> blacklist
//	relaxed   expanded window, every engagement level; keeps one random id
//	deep      all of history, every level; keeps one random id
//
// A bucket is only blacklisted when the probe says it holds nothing.
func (p *Sampler) sampleBucket(ctx context.Context, s *Session, gen uint64, bucket string, budget int) (int, error) {
	window := windowEndingAt(p.now(), pick(p.rng, windowSpans))
	floor := pick(p.rng, engagementFloors)
	issued := 0
	spend := func() bool {
		if issued >= budget {
			return false
		}
		issued++
		return true
	}

	logger.Log.Debug("Sampling bucket",
		logger.WithSessionID(s.ID),
		logger.WithBucket(bucket),
		zap.Duration("window", window.span()),
		zap.Stringer("floor", floor),
	)

	if !spend() {
		return issued, nil
	}
	taken, err := s.admit(gen, p.query(ctx, tierPrimary, bucket, window, floor), p.target)
	if err != nil || taken > 0 {
		return issued, err
	}

	expanded := window.expand(ExpansionFactor, MaxTimeRange)
	widened := expanded.Start < window.Start
	if widened {
		if !spend() {
			return issued, nil
		}
		found, err := s.reserveOne(gen, p.query(ctx, tierExpanded, bucket, expanded, floor), p.rng)
		if err != nil || found {
			return issued, err
		}
	}

	state := existenceUnknown
	if widened {
		if !spend() {
			return issued, nil
		}
		if state = p.probe(ctx, bucket); state == existenceEmpty {
			return issued, p.blacklist(s, gen, bucket)
		}
	}

	if floor > models.EngagementLow {
		if !spend() {
			return issued, nil
		}
		found, err := s.reserveOne(gen, p.query(ctx, tierRelaxed, bucket, expanded, models.EngagementAny), p.rng)
		if err != nil || found {
			return issued, err
		}
	}

	if state == existenceUnknown && !widened {
		if !spend() {
			return issued, nil
		}
		if state = p.probe(ctx, bucket); state == existenceEmpty {
			return issued, p.blacklist(s, gen, bucket)
		}
	}
	if state != existencePopulated || !spend() {
		return issued, nil
	}

	// Only posts older than the widest window remain.
	history := timeWindow{Start: 0, End: expanded.End}
	_, err = s.reserveOne(gen, p.query(ctx, tierDeep, bucket, history, models.EngagementAny), p.rng)
	return issued, err
}

func (p *Sampler) query(ctx context.Context, t tier, bucket string, w timeWindow, floor models.EngagementLevel) []models.PostSummary {
	started := time.Now()
	posts, err := withTimeout(ctx, p.queryTimeout, func(ctx context.Context) ([]models.PostSummary, error) {
		return p.store.QueryBucketTimeRange(ctx, bucket, w.Start, w.End, QueryLimit, floor)
	})
	p.metrics.FeedQueryDuration.WithLabelValues(string(t)).Observe(time.Since(started).Seconds())

	if err != nil {
		p.metrics.FeedQueriesTotal.WithLabelValues(string(t), errorLabel(err)).Inc()
		logger.Log.Warn("Bucket query failed",
			logger.WithBucket(bucket),
			zap.String("tier", string(t)),
			zap.Error(err),
		)
		return nil
	}

	result := "hit"
	if len(posts) == 0 {
		result = "miss"
	}
	p.metrics.FeedQueriesTotal.WithLabelValues(string(t), result).Inc()
	return posts
}

func (p *Sampler) probe(ctx context.Context, bucket string) existence {
	exists, err := withTimeout(ctx, p.queryTimeout, func(ctx context.Context) (bool, error) {
		return p.store.BucketExistsAnyTime(ctx, bucket)
	})
	if err != nil {
		p.metrics.FeedQueriesTotal.WithLabelValues(string(tierProbe), errorLabel(err)).Inc()
		logger.Log.Warn("Bucket probe failed", logger.WithBucket(bucket), zap.Error(err))
		return existenceUnknown
	}
	if !exists {
		p.metrics.FeedQueriesTotal.WithLabelValues(string(tierProbe), "miss").Inc()
		return existenceEmpty
	}
	p.metrics.FeedQueriesTotal.WithLabelValues(string(tierProbe), "hit").Inc()
	return existencePopulated
}

func (p *Sampler) blacklist(s *Session, gen uint64, bucket string) error {
	if err := s.blacklist(gen, bucket); err != nil {
		return err
	}
	p.metrics.FeedBlacklistedBuckets.Inc()
	logger.Log.Debug("Bucket blacklisted", logger.WithSessionID(s.ID), logger.WithBucket(bucket))
	return nil
}

func (p *Sampler) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// withTimeout runs fn under its own deadline and stops waiting once the
// deadline passes, even if fn ignores its context.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.value, repository.Classify(r.err)
	case <-ctx.Done():
		var zero T
		return zero, repository.Classify(ctx.Err())
	}
}

func errorLabel(err error) string {
	if errors.Is(err, repository.ErrStorageTimeout) {
		return "timeout"
	}
	return "error"
}

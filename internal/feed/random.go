package feed

import (
	"math/rand"
	"sync"
	"time"

	"github.com/br0z1/social-media-app/internal/models"
)

// Random is the randomness the sampler draws on. Tests inject a scripted
// source to make tier selection deterministic.
type Random interface {
	Float64() float64
	Intn(n int) int
}

type lockedRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a goroutine-safe Random seeded with seed.
func NewRandom(seed int64) Random {
	return &lockedRandom{rng: rand.New(rand.NewSource(seed))}
}

func (r *lockedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

func (r *lockedRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

type weighted[T any] struct {
	value  T
	weight float64
}

// pick walks the cumulative weights with a single draw. Weights sum to 1;
// a draw past the last boundary lands on the final entry.
func pick[T any](rng Random, choices []weighted[T]) T {
	draw := rng.Float64()
	cumulative := 0.0
	for _, c := range choices {
		cumulative += c.weight
		if draw < cumulative {
			return c.value
		}
	}
	return choices[len(choices)-1].value
}

const day = 24 * time.Hour

var windowSpans = []weighted[time.Duration]{
	{value: day, weight: 0.70},
	{value: 7 * day, weight: 0.18},
	{value: 30 * day, weight: 0.08},
	{value: 365 * day, weight: 0.04},
}

var engagementFloors = []weighted[models.EngagementLevel]{
	{value: models.EngagementLow, weight: 0.30},
	{value: models.EngagementMedium, weight: 0.40},
	{value: models.EngagementHigh, weight: 0.30},
}

// timeWindow is an inclusive [Start, End] range in epoch milliseconds.
type timeWindow struct {
	Start int64
	End   int64
}

func windowEndingAt(now time.Time, span time.Duration) timeWindow {
	end := now.UnixMilli()
	return timeWindow{Start: end - span.Milliseconds(), End: end}
}

func (w timeWindow) span() time.Duration {
	return time.Duration(w.End-w.Start) * time.Millisecond
}

// expand widens the window backwards by factor, capped at limit.
func (w timeWindow) expand(factor int, limit time.Duration) timeWindow {
	span := w.span() * time.Duration(factor)
	if span > limit {
		span = limit
	}
	return timeWindow{Start: w.End - span.Milliseconds(), End: w.End}
}

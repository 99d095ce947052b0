package feed

import (
	"errors"
	"sync"

	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/models"
)

const (
	// TargetOnDeck is how many ids a refill tries to have ready.
	TargetOnDeck = 7
	// MaxCacheSize bounds the reserve of fallback ids.
	MaxCacheSize = 20
)

var (
	// ErrSphereNotSet is returned when sampling a session with no sphere.
	ErrSphereNotSet = errors.New("sphere not set")
	// ErrStaleSession means the sphere changed while a refill was in flight
	// and its results were dropped.
	ErrStaleSession = errors.New("session sphere changed during refill")
)

// State is the lifecycle of a sampling session.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExhausted:
		return "exhausted"
	default:
		return "uninitialized"
	}
}

// Stats is a point-in-time view of a session for logs and responses.
type Stats struct {
	State       string `json:"state"`
	Generation  uint64 `json:"generation"`
	OnDeck      int    `json:"onDeck"`
	Cached      int    `json:"cached"`
	Viewed      int    `json:"viewed"`
	Blacklisted int    `json:"blacklisted"`
	Available   int    `json:"available"`
}

// Session holds the sampling state of one viewer looking at one sphere.
//
// Invariants, all guarded by mu:
//   - onDeck is a subset of viewed, so an id is handed out at most once.
//   - cache and viewed are disjoint and cache never exceeds MaxCacheSize.
//   - blacklisted buckets are never offered by pickBucket.
//
// refillMu serializes refills; mu is never held across a storage call.
// The generation token is bumped by SetSphere so a refill that started under
// an older sphere cannot commit into the new one.
type Session struct {
	ID string

	refillMu sync.Mutex

	mu          sync.Mutex
	sphere      geo.Sphere
	state       State
	generation  uint64
	onDeck      []string
	cache       *reserve
	viewed      map[string]struct{}
	blacklisted map[string]struct{}
	available   []string
}

// NewSession creates an uninitialized session.
func NewSession(id string) *Session {
	return &Session{
		ID:          id,
		cache:       newReserve(MaxCacheSize),
		viewed:      make(map[string]struct{}),
		blacklisted: make(map[string]struct{}),
	}
}

// SetSphere resets the session to sample a new sphere. An invalid sphere
// leaves the session untouched.
func (s *Session) SetSphere(sphere geo.Sphere) error {
	buckets, err := geo.CoveringBuckets(sphere)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sphere = sphere
	s.generation++
	s.onDeck = nil
	s.cache = newReserve(MaxCacheSize)
	s.viewed = make(map[string]struct{})
	s.blacklisted = make(map[string]struct{})
	s.available = buckets
	s.state = StateActive
	return nil
}

// Sphere returns the sphere being sampled.
func (s *Session) Sphere() geo.Sphere {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sphere
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the current sphere generation.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// OnDeck returns a copy of the ids ready for delivery.
func (s *Session) OnDeck() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.onDeck...)
}

// AvailableBuckets returns the buckets still worth querying.
func (s *Session) AvailableBuckets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return append([]string(nil), s.available...)
}

// Stats snapshots the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return Stats{
		State:       s.state.String(),
		Generation:  s.generation,
		OnDeck:      len(s.onDeck),
		Cached:      s.cache.len(),
		Viewed:      len(s.viewed),
		Blacklisted: len(s.blacklisted),
		Available:   len(s.available),
	}
}

// Drain removes and returns up to n ids from the front of on-deck. Drained
// ids stay in the viewed set.
func (s *Session) Drain(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.onDeck) {
		n = len(s.onDeck)
	}
	out := append([]string(nil), s.onDeck[:n]...)
	s.onDeck = s.onDeck[n:]
	return out
}

// Requeue puts drained ids back at the front of on-deck so a failed
// delivery is retried. It does nothing once the sphere has changed since gen.
func (s *Session) Requeue(gen uint64, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) == 0 || s.checkLocked(gen) != nil {
		return
	}
	s.onDeck = append(append([]string(nil), ids...), s.onDeck...)
}

// The methods below are used by the sampler. Each takes the generation the
// caller started under and fails with ErrStaleSession if it moved on.

// begin opens a refill: it promotes reserve ids and reports the generation
// to work under and whether on-deck is already full.
func (s *Session) begin(target int) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return 0, false, ErrSphereNotSet
	}
	s.promoteLocked(target)
	full := len(s.onDeck) >= target || s.state == StateExhausted
	return s.generation, full, nil
}

func (s *Session) checkLocked(gen uint64) error {
	if s.generation != gen {
		return ErrStaleSession
	}
	return nil
}

func (s *Session) seenLocked(id string) bool {
	if _, ok := s.viewed[id]; ok {
		return true
	}
	return s.cache.contains(id)
}

// promoteLocked moves reserve ids into on-deck until target is reached.
func (s *Session) promoteLocked(target int) {
	for len(s.onDeck) < target {
		id, ok := s.cache.pop()
		if !ok {
			return
		}
		s.onDeck = append(s.onDeck, id)
		s.viewed[id] = struct{}{}
	}
}

// pruneLocked drops blacklisted buckets from the available list.
func (s *Session) pruneLocked() {
	if len(s.blacklisted) == 0 {
		return
	}
	kept := s.available[:0]
	for _, b := range s.available {
		if _, bad := s.blacklisted[b]; !bad {
			kept = append(kept, b)
		}
	}
	s.available = kept
}

// pickBucket chooses a random non-blacklisted bucket.
func (s *Session) pickBucket(gen uint64, rng Random) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(gen); err != nil {
		return "", err
	}
	s.pruneLocked()
	if len(s.available) == 0 {
		return "", nil
	}
	return s.available[rng.Intn(len(s.available))], nil
}

// needsMore reports whether on-deck is still below target.
func (s *Session) needsMore(gen uint64, target int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(gen); err != nil {
		return false, err
	}
	return len(s.onDeck) < target, nil
}

// admit places unseen posts on deck up to target and holds the overflow in
// the reserve. Overflow beyond the reserve is left for later queries. It
// returns how many ids were newly taken.
func (s *Session) admit(gen uint64, posts []models.PostSummary, target int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(gen); err != nil {
		return 0, err
	}

	taken := 0
	for _, p := range posts {
		if s.seenLocked(p.PostID) {
			continue
		}
		if len(s.onDeck) < target {
			s.onDeck = append(s.onDeck, p.PostID)
			s.viewed[p.PostID] = struct{}{}
			taken++
			continue
		}
		if !s.cache.add(p.PostID) {
			break
		}
		taken++
	}
	return taken, nil
}

// reserveOne keeps a single random unseen post as a fallback. found reports
// whether any unseen post was present, even if the reserve had no room.
func (s *Session) reserveOne(gen uint64, posts []models.PostSummary, rng Random) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(gen); err != nil {
		return false, err
	}

	unseen := make([]string, 0, len(posts))
	for _, p := range posts {
		if !s.seenLocked(p.PostID) {
			unseen = append(unseen, p.PostID)
		}
	}
	if len(unseen) == 0 {
		return false, nil
	}
	s.cache.add(unseen[rng.Intn(len(unseen))])
	return true, nil
}

// blacklist marks a bucket as holding no posts at all.
func (s *Session) blacklist(gen uint64, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(gen); err != nil {
		return err
	}
	s.blacklisted[bucket] = struct{}{}
	s.pruneLocked()
	return nil
}

// finish closes out a refill: it promotes reserve ids, flags exhaustion
// and returns the on-deck ids.
func (s *Session) finish(gen uint64, target int) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(gen); err != nil {
		return nil, false, err
	}

	s.promoteLocked(target)
	s.pruneLocked()

	exhaustedNow := false
	if len(s.available) == 0 && len(s.onDeck) == 0 && s.cache.len() == 0 && s.state == StateActive {
		s.state = StateExhausted
		exhaustedNow = true
	}
	return append([]string(nil), s.onDeck...), exhaustedNow, nil
}

// reserve is an insertion-ordered, bounded set of post ids.
type reserve struct {
	limit int
	ids   []string
	index map[string]struct{}
}

func newReserve(limit int) *reserve {
	return &reserve{limit: limit, index: make(map[string]struct{})}
}

func (r *reserve) len() int { return len(r.ids) }

func (r *reserve) contains(id string) bool {
	_, ok := r.index[id]
	return ok
}

// add reports false when the reserve is full.
func (r *reserve) add(id string) bool {
	if r.contains(id) {
		return true
	}
	if len(r.ids) >= r.limit {
		return false
	}
	r.ids = append(r.ids, id)
	r.index[id] = struct{}{}
	return true
}

func (r *reserve) pop() (string, bool) {
	if len(r.ids) == 0 {
		return "", false
	}
	id := r.ids[0]
	r.ids = r.ids[1:]
	delete(r.index, id)
	return id, true
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/logger"
	"github.com/br0z1/social-media-app/internal/models"
)

// ErrInvalidRange is returned for a visible range with start > end or a
// negative start.
var ErrInvalidRange = errors.New("invalid visible range")

// PostResolver loads full posts for delivered ids. Missing ids are skipped.
type PostResolver interface {
	GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error)
}

// ManagerConfig tunes a Manager. Zero fields take the defaults.
type ManagerConfig struct {
	InactivityTimeout time.Duration
	TickInterval      time.Duration
	MaxPostCache      int
	MaxEmptyRefills   int
	PreloadCount      int
	// OnNoMorePosts is called once when refills keep coming back empty.
	OnNoMorePosts func(sessionID string)
}

// DefaultManagerConfig returns the production tuning.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		InactivityTimeout: 10 * time.Second,
		TickInterval:      time.Second,
		MaxPostCache:      20,
		MaxEmptyRefills:   3,
		PreloadCount:      3,
	}
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	d := DefaultManagerConfig()
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.MaxPostCache <= 0 {
		c.MaxPostCache = d.MaxPostCache
	}
	if c.MaxEmptyRefills <= 0 {
		c.MaxEmptyRefills = d.MaxEmptyRefills
	}
	if c.PreloadCount < 0 {
		c.PreloadCount = 0
	}
	return c
}

// VisibleRange is the span of delivered positions the viewer has on screen.
type VisibleRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Manager drives one session for a viewer: it keeps on-deck topped up in
// the background while the viewer is active, resolves delivered ids to
// posts and keeps a small cache of post objects around the visible range.
type Manager struct {
	session  *Session
	sampler  *Sampler
	resolver PostResolver
	cfg      ManagerConfig

	mu           sync.Mutex
	parent       context.Context
	started      bool
	active       bool
	stationary   bool
	noMorePosts  bool
	emptyRefills int
	lastActivity time.Time
	inactivity   *time.Timer
	visible      *VisibleRange
	delivered    []string
	positions    map[string]int
	posts        map[string]models.Post
	loopCancel   context.CancelFunc
	loopDone     chan struct{}
}

// NewManager wires a manager around a session.
func NewManager(session *Session, sampler *Sampler, resolver PostResolver, cfg ManagerConfig) *Manager {
	return &Manager{
		session:      session,
		sampler:      sampler,
		resolver:     resolver,
		cfg:          cfg.withDefaults(),
		parent:       context.Background(),
		lastActivity: time.Now(),
		positions:    make(map[string]int),
		posts:        make(map[string]models.Post),
	}
}

// Session returns the underlying sampling session.
func (m *Manager) Session() *Session {
	return m.session
}

// SetSphere points the session at a new sphere and forgets everything
// delivered under the old one.
func (m *Manager) SetSphere(sphere geo.Sphere) error {
	if err := m.session.SetSphere(sphere); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered = nil
	m.positions = make(map[string]int)
	m.posts = make(map[string]models.Post)
	m.visible = nil
	m.emptyRefills = 0
	m.noMorePosts = false
	m.active = m.started
	return nil
}

// Start activates the manager and its background refill loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.parent = ctx
	m.started = true
	m.active = !m.noMorePosts
	m.stationary = false
	m.lastActivity = time.Now()
	m.armInactivityLocked()
	m.mu.Unlock()

	m.startLoop()
}

// Stop halts the background loop and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.started = false
	m.active = false
	if m.inactivity != nil {
		m.inactivity.Stop()
	}
	m.mu.Unlock()

	m.stopLoop(true)
}

// OnUserActivity records viewer activity: it restarts the inactivity timer
// and resumes refilling if the manager had gone stationary.
func (m *Manager) OnUserActivity() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.armInactivityLocked()
	m.stationary = false
	if !m.noMorePosts {
		m.active = true
	}
	m.mu.Unlock()

	m.startLoop()
}

// Pause stops background refills until Resume or the next activity.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.stationary = true
	m.mu.Unlock()

	m.stopLoop(false)
	logger.Log.Debug("Feed session paused", logger.WithSessionID(m.session.ID))
}

// Resume restarts background refills after Pause.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.stationary = false
	started := m.started
	m.mu.Unlock()

	if started {
		m.startLoop()
	}
}

// IsActive reports whether background refills are enabled.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// IsStationary reports whether the viewer has gone idle.
func (m *Manager) IsStationary() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stationary
}

// LastActivity returns when the viewer was last seen.
func (m *Manager) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// UpdateVisibleRange records the delivered positions on screen and evicts
// post objects that scrolled away.
func (m *Manager) UpdateVisibleRange(start, end int) error {
	if start < 0 || end < start {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, start, end)
	}

	m.mu.Lock()
	m.visible = &VisibleRange{Start: start, End: end}
	m.mu.Unlock()

	m.CleanupCache()
	return nil
}

// NextPosts delivers up to count posts. exhausted is true once the sphere
// has nothing left to offer.
func (m *Manager) NextPosts(ctx context.Context, count int) ([]models.Post, bool, error) {
	m.OnUserActivity()

	gen := m.session.Generation()
	batch, err := m.sampler.NextBatch(ctx, m.session, count)
	if err != nil {
		return nil, false, err
	}
	m.recordRefill(len(batch.PostIDs))

	posts, err := m.resolve(ctx, batch.PostIDs)
	if err != nil {
		m.session.Requeue(gen, batch.PostIDs)
		return nil, false, err
	}

	m.mu.Lock()
	for _, id := range batch.PostIDs {
		if _, ok := m.positions[id]; !ok {
			m.positions[id] = len(m.delivered)
			m.delivered = append(m.delivered, id)
		}
	}
	m.mu.Unlock()

	m.CleanupCache()
	return posts, batch.Exhausted, nil
}

// Delivered returns every id handed out since the sphere was set, in order.
func (m *Manager) Delivered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.delivered...)
}

// CachedPostIDs lists the post objects currently held.
func (m *Manager) CachedPostIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.posts))
	for id := range m.posts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CleanupCache drops post objects more than one position outside the
// visible range, then trims the oldest delivered ones down to MaxPostCache.
// Preloaded posts that were never delivered are trimmed last.
func (m *Manager) CleanupCache() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.visible != nil {
		for id := range m.posts {
			pos, delivered := m.positions[id]
			if !delivered {
				continue
			}
			if pos < m.visible.Start-1 || pos > m.visible.End+1 {
				delete(m.posts, id)
			}
		}
	}

	excess := len(m.posts) - m.cfg.MaxPostCache
	if excess <= 0 {
		return
	}

	ids := make([]string, 0, len(m.posts))
	for id := range m.posts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.ageRankLocked(ids[i]) < m.ageRankLocked(ids[j])
	})
	for _, id := range ids[:excess] {
		delete(m.posts, id)
	}
}

func (m *Manager) ageRankLocked(id string) int {
	if pos, ok := m.positions[id]; ok {
		return pos
	}
	return len(m.delivered)
}

func (m *Manager) resolve(ctx context.Context, ids []string) ([]models.Post, error) {
	if len(ids) == 0 {
		return []models.Post{}, nil
	}

	m.mu.Lock()
	var missing []string
	for _, id := range ids {
		if _, ok := m.posts[id]; !ok {
			missing = append(missing, id)
		}
	}
	m.mu.Unlock()

	var fetched []models.Post
	if len(missing) > 0 {
		var err error
		fetched, err = m.resolver.GetPosts(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("resolve posts: %w", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range fetched {
		m.posts[p.PostID] = p
	}
	out := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.posts[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Manager) recordRefill(found int) {
	m.mu.Lock()
	if found > 0 {
		m.emptyRefills = 0
		m.mu.Unlock()
		return
	}

	m.emptyRefills++
	if m.emptyRefills < m.cfg.MaxEmptyRefills || m.noMorePosts {
		m.mu.Unlock()
		return
	}
	m.noMorePosts = true
	m.active = false
	notify := m.cfg.OnNoMorePosts
	m.mu.Unlock()

	logger.Log.Info("No more posts in sphere", logger.WithSessionID(m.session.ID))
	if notify != nil {
		notify(m.session.ID)
	}
}

func (m *Manager) armInactivityLocked() {
	if m.inactivity != nil {
		m.inactivity.Stop()
	}
	m.inactivity = time.AfterFunc(m.cfg.InactivityTimeout, m.Pause)
}

func (m *Manager) startLoop() {
	m.mu.Lock()
	if m.loopCancel != nil || !m.started || m.stationary {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.parent)
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.loop(ctx)
	}()
}

func (m *Manager) stopLoop(wait bool) {
	m.mu.Lock()
	cancel, done := m.loopCancel, m.loopDone
	m.loopCancel, m.loopDone = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if wait {
		<-done
	}
}

func (m *Manager) loop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	m.mu.Lock()
	run := m.active && !m.stationary
	m.mu.Unlock()
	if !run {
		return
	}

	ids, err := m.sampler.Refill(ctx, m.session)
	if err != nil {
		if !errors.Is(err, ErrStaleSession) && !errors.Is(err, context.Canceled) {
			logger.Log.Warn("Background refill failed", logger.WithSessionID(m.session.ID), zap.Error(err))
		}
		return
	}
	m.recordRefill(len(ids))

	if n := min(m.cfg.PreloadCount, len(ids)); n > 0 {
		if _, err := m.resolve(ctx, ids[:n]); err != nil {
			logger.Log.Debug("Preload failed", logger.WithSessionID(m.session.ID), zap.Error(err))
		}
	}
	m.CleanupCache()
}

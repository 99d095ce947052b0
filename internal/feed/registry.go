package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/logger"
	"github.com/br0z1/social-media-app/internal/metrics"
)

// ErrSessionNotFound is returned for an unknown session id.
var ErrSessionNotFound = errors.New("feed session not found")

type registryEntry struct {
	manager  *Manager
	sphereID string
	lastUsed time.Time
}

// Registry keeps one Manager per viewing session so that repeated batch
// requests share their viewed set. Idle sessions are evicted by a periodic
// janitor.
type Registry struct {
	sampler  *Sampler
	resolver PostResolver
	cfg      ManagerConfig
	idleTTL  time.Duration
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*registryEntry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates a registry. Sessions unused for idleTTL are dropped.
func NewRegistry(sampler *Sampler, resolver PostResolver, cfg ManagerConfig, idleTTL time.Duration) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	interval := idleTTL / 2
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	return &Registry{
		sampler:  sampler,
		resolver: resolver,
		cfg:      cfg,
		idleTTL:  idleTTL,
		interval: interval,
		now:      time.Now,
		entries:  make(map[string]*registryEntry),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Acquire returns the manager for sessionID, creating it when unknown and
// resetting it when the sphere or sphereID differ from the last request.
// An empty sessionID allocates a new one. The sphere is validated first so
// a bad request never disturbs an existing session.
func (r *Registry) Acquire(sessionID, sphereID string, sphere geo.Sphere) (*Manager, string, error) {
	if err := sphere.Validate(); err != nil {
		return nil, "", err
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	if !ok {
		entry = &registryEntry{
			manager:  NewManager(NewSession(sessionID), r.sampler, r.resolver, r.cfg),
			sphereID: sphereID,
		}
		r.entries[sessionID] = entry
		metrics.Get().FeedSessionsActive.Inc()
	}
	entry.lastUsed = r.now()
	changed := !ok || entry.sphereID != sphereID || !entry.manager.Session().Sphere().Equal(sphere)
	entry.sphereID = sphereID
	manager := entry.manager
	r.mu.Unlock()

	if changed {
		if err := manager.SetSphere(sphere); err != nil {
			return nil, "", err
		}
		logger.Log.Info("Feed session sphere set",
			logger.WithSessionID(sessionID),
			zap.String("sphere_id", sphereID),
			zap.Float64("lat", sphere.Center.Lat),
			zap.Float64("lng", sphere.Center.Lng),
			zap.Float64("radius", sphere.Radius),
		)
	}
	if !ok {
		manager.Start(r.ctx)
	}
	return manager, sessionID, nil
}

// Get looks up a session and marks it used.
func (r *Registry) Get(sessionID string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	entry.lastUsed = r.now()
	return entry.manager, nil
}

// Remove ends a session.
func (r *Registry) Remove(sessionID string) error {
	r.mu.Lock()
	entry, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	entry.manager.Stop()
	metrics.Get().FeedSessionsActive.Dec()
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Start begins the periodic eviction of idle sessions
func (r *Registry) Start() {
	logger.Log.Info("Starting feed session janitor", zap.Duration("idle_ttl", r.idleTTL))
	go r.run()
}

// Stop halts the janitor and every live session
func (r *Registry) Stop() {
	r.cancel()

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.manager.Stop()
	}
	metrics.Get().FeedSessionsActive.Sub(float64(len(entries)))
	logger.Log.Info("Feed session janitor stopped", zap.Int("sessions_closed", len(entries)))
}

func (r *Registry) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.EvictIdle()
		case <-r.ctx.Done():
			return
		}
	}
}

// EvictIdle drops sessions unused for longer than the idle TTL and returns
// how many it removed.
func (r *Registry) EvictIdle() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var stale []*registryEntry
	for id, entry := range r.entries {
		if entry.lastUsed.Before(cutoff) {
			stale = append(stale, entry)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range stale {
		entry.manager.Stop()
	}
	if len(stale) > 0 {
		metrics.Get().FeedSessionsActive.Sub(float64(len(stale)))
		logger.Log.Info("Evicted idle feed sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

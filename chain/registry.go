package chain

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory builds the service for one platform.
type Factory func(ctx context.Context) (Service, error)

// Registry creates services on first use and caches them per platform.
// Concurrent first requests for a platform share one factory call.
type Registry struct {
	mu        sync.RWMutex
	factories map[Platform]Factory
	services  map[Platform]Service
	group     singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Platform]Factory),
		services:  make(map[Platform]Service),
	}
}

// Register sets the factory for p. A service already built for p is kept.
func (r *Registry) Register(p Platform, f Factory) {
	r.mu.Lock()
	r.factories[p] = f
	r.mu.Unlock()
}

// Service returns the cached service for p, building it if needed. A
// failed build is not cached.
func (r *Registry) Service(ctx context.Context, p Platform) (Service, error) {
	r.mu.RLock()
	svc, ok := r.services[p]
	f := r.factories[p]
	r.mu.RUnlock()
	if ok {
		return svc, nil
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPlatform, p)
	}

	v, err, _ := r.group.Do(p.String(), func() (any, error) {
		r.mu.RLock()
		svc, ok := r.services[p]
		r.mu.RUnlock()
		if ok {
			return svc, nil
		}
		svc, err := f(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.services[p] = svc
		r.mu.Unlock()
		logger.WithField("platform", p).Info("chain service ready")
		return svc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("build %v service: %w", p, err)
	}
	return v.(Service), nil
}

// Platforms lists the platforms with a registered factory.
func (r *Registry) Platforms() []Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Platform, 0, len(r.factories))
	for p := range platformNames {
		if _, ok := r.factories[Platform(p)]; ok {
			out = append(out, Platform(p))
		}
	}
	return out
}

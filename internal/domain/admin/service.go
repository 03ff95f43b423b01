// Package admin serves operational diagnostics for clinic administrators.
package admin

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fertility/cds/internal/platform/db"
)

// Counter is implemented by every repository that can count its rows.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Source names one entity count.
type Source struct {
	Name    string
	Counter Counter
}

// Stats is the diagnostics payload.
type Stats struct {
	Counts      map[string]int `json:"counts"`
	Pool        *db.PoolStats  `json:"pool,omitempty"`
	Model       string         `json:"model"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

type Service struct {
	sources   []Source
	poolStats func() *db.PoolStats
	model     string
}

// NewService builds the diagnostics service. poolStats may be nil.
func NewService(sources []Source, poolStats func() *db.PoolStats, model string) *Service {
	return &Service{sources: sources, poolStats: poolStats, model: model}
}

// Stats gathers every count concurrently. The first failure cancels the rest.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	counts := make(map[string]int, len(s.sources))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		src := src
		g.Go(func() error {
			n, err := src.Counter.Count(gctx)
			if err != nil {
				return err
			}
			mu.Lock()
			counts[src.Name] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st := &Stats{Counts: counts, Model: s.model, GeneratedAt: time.Now().UTC()}
	if s.poolStats != nil {
		st.Pool = s.poolStats()
	}
	return st, nil
}

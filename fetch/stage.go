// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package fetch

import (
	"context"

	"github.com/google/uuid"
	log "github.com/spirit-labs/docfetch/logger"
	"github.com/spirit-labs/docfetch/metrics"
)

// Stage runs the whole deferred fetch for one query: register, fetch, re-associate. Every Run gets its own registry
// which is released before Run returns, whatever the outcome.
type Stage struct {
	coordinator *Coordinator
	metrics     *metrics.FetchMetrics
}

func NewStage(fetcher Fetcher, cfg Conf, fetchMetrics *metrics.FetchMetrics) *Stage {
	return &Stage{
		coordinator: NewCoordinator(fetcher, cfg, fetchMetrics),
		metrics:     fetchMetrics,
	}
}

func (s *Stage) Run(ctx context.Context, rows []ScatterRow, layout Layout) ([]Row, error) {
	out, err := s.run(ctx, rows, layout)
	s.metrics.ObserveStage(err)
	return out, err
}

func (s *Stage) run(ctx context.Context, rows []ScatterRow, layout Layout) ([]Row, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	registry := NewRegistry(uuid.New())
	defer registry.Release()
	if err := registry.RegisterAll(rows); err != nil {
		return nil, err
	}
	stats := registry.Stats()
	s.metrics.ObserveRegistration(stats.RequireCalls, stats.DistinctDocs)
	if log.DebugEnabled {
		log.Debugf("query %s: %d references to %d distinct docs across %d readers, %d need fetch",
			registry.QueryID(), stats.RequireCalls, stats.DistinctDocs, stats.Readers, stats.FetchRequiredReaders)
	}
	if err := s.coordinator.Execute(ctx, registry); err != nil {
		return nil, err
	}
	return Reassociate(registry, rows, layout)
}

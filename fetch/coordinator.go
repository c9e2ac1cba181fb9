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
	"time"

	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
	"github.com/spirit-labs/docfetch/metrics"
	"golang.org/x/sync/errgroup"
)

/*
Coordinator issues one fetch per reader bucket that needs one and feeds the responses back into the buckets.

Fetches run concurrently, one goroutine per reader, joined by an errgroup. The first failure cancels the context
shared by the other fetches and becomes the result of the whole stage. Nothing is retried here, retry policy belongs
to whoever runs the query.

Responses are only absorbed once every fetch has succeeded. If anything fails the registry is released, so rows from
readers that did succeed are dropped and never reach re-association.
*/
type Coordinator struct {
	fetcher Fetcher
	cfg     Conf
	metrics *metrics.FetchMetrics
}

func NewCoordinator(fetcher Fetcher, cfg Conf, fetchMetrics *metrics.FetchMetrics) *Coordinator {
	return &Coordinator{
		fetcher: fetcher,
		cfg:     cfg,
		metrics: fetchMetrics,
	}
}

func (c *Coordinator) Execute(ctx context.Context, registry *Registry) error {
	if err := ctx.Err(); err != nil {
		registry.Release()
		return errors.NewFetchErrorf(errors.Cancelled, "fetch stage for query %s cancelled: %v", registry.QueryID(), err)
	}
	targets := registry.PendingFetches()
	if len(targets) == 0 {
		return nil
	}
	responses := make([][]Row, len(targets))
	group, groupCtx := errgroup.WithContext(ctx)
	// a zero value Conf has no limit
	limit := c.cfg.MaxConcurrentFetches
	if limit <= 0 {
		limit = -1
	}
	group.SetLimit(limit)
	for i, bucket := range targets {
		i := i
		readerID := bucket.ReaderID()
		docIDs := bucket.DocIDs()
		group.Go(func() error {
			rows, err := c.fetchReader(groupCtx, readerID, docIDs)
			if err != nil {
				return err
			}
			responses[i] = rows
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		registry.Release()
		if ctx.Err() != nil {
			return errors.NewFetchErrorf(errors.Cancelled, "fetch stage for query %s cancelled: %v", registry.QueryID(), ctx.Err())
		}
		log.Debugf("fetch stage for query %s failed: %v", registry.QueryID(), err)
		return err
	}
	for i, bucket := range targets {
		if err := bucket.Absorb(responses[i]); err != nil {
			registry.Release()
			return err
		}
	}
	return nil
}

func (c *Coordinator) fetchReader(ctx context.Context, readerID ReaderID, docIDs []DocID) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		// A sibling already failed
		return nil, errors.NewFetchErrorf(errors.Cancelled, "fetch for reader %d not started: %v", readerID, err)
	}
	if c.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		defer cancel()
	}
	start := time.Now()
	rows, err := c.fetcher.Fetch(ctx, readerID, docIDs)
	c.metrics.ObserveFetch(time.Since(start), err)
	if err != nil {
		if errors.IsConsistencyViolation(err) || errors.IsFetchErrorWithCode(err, errors.Cancelled) {
			return nil, err
		}
		return nil, errors.NewRemoteFetchFailed(int32(readerID), err)
	}
	return rows, nil
}

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
package fetchcache

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
)

/*
CachingFetcher is a fetch.Fetcher that keeps recently materialized rows in an in-memory LRU, keyed by reader and doc
id. It is only correct for readers whose documents never change once written, e.g. immutable segments.

A request is served from the cache where possible. The ids that miss are sent downstream in one call, in the order
they appear in the request, and the response is merged back so the caller still gets exactly one row per requested
id in request order.
*/
type CachingFetcher struct {
	fetcher fetch.Fetcher
	cache   *lru.Cache
	stats   CacheStats
}

type CacheStats struct {
	Gets   int64
	Hits   int64
	Misses int64
}

type cacheKey struct {
	readerID fetch.ReaderID
	docID    fetch.DocID
}

func NewCachingFetcher(fetcher fetch.Fetcher, maxEntries int) (*CachingFetcher, error) {
	if maxEntries < 1 {
		return nil, errors.NewInvalidConfigurationError("row-cache-max-entries must be > 0")
	}
	cache, err := lru.New(maxEntries)
	if err != nil {
		return nil, err
	}
	return &CachingFetcher{
		fetcher: fetcher,
		cache:   cache,
	}, nil
}

func (c *CachingFetcher) Fetch(ctx context.Context, readerID fetch.ReaderID, docIDs []fetch.DocID) ([]fetch.Row, error) {
	rows := make([]fetch.Row, len(docIDs))
	var missIDs []fetch.DocID
	var missPositions []int
	for i, docID := range docIDs {
		atomic.AddInt64(&c.stats.Gets, 1)
		v, ok := c.cache.Get(cacheKey{readerID: readerID, docID: docID})
		if ok {
			atomic.AddInt64(&c.stats.Hits, 1)
			rows[i] = v.(fetch.Row)
			continue
		}
		atomic.AddInt64(&c.stats.Misses, 1)
		missIDs = append(missIDs, docID)
		missPositions = append(missPositions, i)
	}
	if len(missIDs) == 0 {
		return rows, nil
	}
	fetched, err := c.fetcher.Fetch(ctx, readerID, missIDs)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missIDs) {
		return nil, errors.NewConsistencyViolationf("reader %d returned %d rows for %d cache misses", readerID,
			len(fetched), len(missIDs))
	}
	for i, row := range fetched {
		rows[missPositions[i]] = row
		c.cache.Add(cacheKey{readerID: readerID, docID: missIDs[i]}, row)
	}
	return rows, nil
}

// Invalidate drops every cached row of readerID, e.g. after the reader has been replaced.
func (c *CachingFetcher) Invalidate(readerID fetch.ReaderID) {
	for _, k := range c.cache.Keys() {
		if k.(cacheKey).readerID == readerID {
			c.cache.Remove(k)
		}
	}
}

func (c *CachingFetcher) Len() int {
	return c.cache.Len()
}

func (c *CachingFetcher) GetStats() CacheStats {
	return CacheStats{
		Gets:   atomic.LoadInt64(&c.stats.Gets),
		Hits:   atomic.LoadInt64(&c.stats.Hits),
		Misses: atomic.LoadInt64(&c.stats.Misses),
	}
}

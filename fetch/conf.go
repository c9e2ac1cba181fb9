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
	"time"

	"github.com/spirit-labs/docfetch/errors"
)

const (
	DefaultMaxConcurrentFetches = 64
	DefaultFetchTimeout         = 30 * time.Second
)

type Conf struct {
	// MaxConcurrentFetches bounds the number of reader fetches in flight for one query. Zero means no bound
	MaxConcurrentFetches int
	// FetchTimeout applies to each reader fetch. Zero means no timeout beyond the caller's context
	FetchTimeout time.Duration
}

func NewConf() Conf {
	return Conf{
		MaxConcurrentFetches: DefaultMaxConcurrentFetches,
		FetchTimeout:         DefaultFetchTimeout,
	}
}

func (c *Conf) Validate() error {
	if c.MaxConcurrentFetches < 1 {
		return errors.NewInvalidConfigurationError("max-concurrent-fetches must be > 0")
	}
	if c.FetchTimeout < 0 {
		return errors.NewInvalidConfigurationError("fetch-timeout must be >= 0")
	}
	return nil
}

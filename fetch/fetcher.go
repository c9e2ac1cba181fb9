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

import "context"

// Fetcher materializes documents of one reader. The returned rows must match docIDs in length and order, the
// coordinator relies on it to line rows up with the ids it asked for. Implementations should return promptly when ctx
// is cancelled.
type Fetcher interface {
	Fetch(ctx context.Context, readerID ReaderID, docIDs []DocID) ([]Row, error)
}

type FetcherFunc func(ctx context.Context, readerID ReaderID, docIDs []DocID) ([]Row, error)

func (f FetcherFunc) Fetch(ctx context.Context, readerID ReaderID, docIDs []DocID) ([]Row, error) {
	return f(ctx, readerID, docIDs)
}

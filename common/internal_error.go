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

package common

import (
	"github.com/google/uuid"
	"github.com/spirit-labs/docfetch/errors"
	log "github.com/spirit-labs/docfetch/logger"
)

// LogInternalError logs err with a random reference and returns an error that only carries the reference. Unexpected
// failures inside a fetch executor are reported this way so callers never see server internals.
func LogInternalError(err error) errors.FetchError {
	id, err2 := uuid.NewRandom()
	var errRef string
	if err2 != nil {
		log.Errorf("failed to generate uuid %v", err2)
	} else {
		errRef = id.String()
	}
	ferr := errors.NewInternalError(errRef)
	log.Errorf("internal error (reference %s) occurred %+v", errRef, err)
	return ferr
}

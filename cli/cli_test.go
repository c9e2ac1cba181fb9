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

package cli

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spirit-labs/docfetch/conf"
	"github.com/spirit-labs/docfetch/docstore"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/fetchsvc"
	"github.com/spirit-labs/docfetch/testutils"
	"github.com/spirit-labs/docfetch/transport"
	"github.com/stretchr/testify/require"
)

const docsPerReader = 50

// startNodes serves each store from its own local fetch service and returns the addresses.
func startNodes(t *testing.T, localTransports *transport.LocalTransports, stores ...*docstore.Store) []string {
	var addresses []string
	for _, store := range stores {
		server, err := localTransports.NewLocalServer(uuid.New().String())
		require.NoError(t, err)
		service, err := fetchsvc.NewService(store)
		require.NoError(t, err)
		require.NoError(t, service.RegisterHandlers(server))
		addresses = append(addresses, server.Address())
	}
	return addresses
}

func generate(t *testing.T, numReaders int, firstReaderID fetch.ReaderID) *docstore.Store {
	store, err := docstore.Generate(docstore.GenerateOpts{
		NumReaders:    numReaders,
		DocsPerReader: docsPerReader,
		FirstReaderID: firstReaderID,
		Seed:          23,
	})
	require.NoError(t, err)
	return store
}

func setupCli(t *testing.T, rowCacheMaxEntries int) *Cli {
	localTransports := transport.NewLocalTransports()
	addresses := startNodes(t, localTransports, generate(t, 2, 0), generate(t, 2, 10))
	cfg := conf.Config{
		ReaderAddresses:    addresses,
		RowCacheMaxEntries: rowCacheMaxEntries,
		GenerateSeed:       7,
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	cl := NewCli(cfg, localTransports.CreateConnection, nil)
	require.NoError(t, cl.Start())
	t.Cleanup(func() {
		require.NoError(t, cl.Stop())
	})
	return cl
}

func execute(t *testing.T, cl *Cli, statement string) []string {
	ch, err := cl.ExecuteStatement(statement)
	require.NoError(t, err)
	var lines []string
	for line := range ch {
		lines = append(lines, line)
	}
	return lines
}

func TestReaders(t *testing.T) {
	cl := setupCli(t, 0)
	lines := execute(t, cl, "readers;")
	// border, header, border, 4 readers, border, row count
	require.Equal(t, 9, len(lines))
	require.True(t, strings.HasPrefix(lines[0], "+---"))
	require.Contains(t, lines[1], "reader_id")
	require.Contains(t, lines[1], "num_docs")
	for i, readerID := range []int{0, 1, 10, 11} {
		line := lines[3+i]
		require.True(t, strings.HasPrefix(line, fmt.Sprintf("| %d ", readerID)), line)
		require.Contains(t, line, fmt.Sprintf("%d", docsPerReader))
		require.Contains(t, line, docstore.RegionForReader(fetch.ReaderID(readerID)))
	}
	require.Equal(t, "4 rows returned", lines[8])
}

func TestQuery(t *testing.T) {
	cl := setupCli(t, 0)
	lines := execute(t, cl, "query 20 3;")
	// border, header, border, 20 rows, border, stats, row count
	require.Equal(t, 26, len(lines))
	require.Contains(t, lines[1], "l_name")
	require.Contains(t, lines[1], "l_region")
	require.Contains(t, lines[1], "r_created")
	for i := 0; i < 20; i++ {
		line := lines[3+i]
		require.True(t, strings.HasPrefix(line, fmt.Sprintf("| %d ", i)), line)
		require.Contains(t, line, "reader")
		require.NotContains(t, line, "null")
	}
	require.True(t, strings.HasPrefix(lines[24], "40 references, "), lines[24])
	require.Contains(t, lines[24], "4 readers fetched")
	require.Equal(t, "20 rows returned", lines[25])
}

func TestQueryDefaultRows(t *testing.T) {
	cl := setupCli(t, 0)
	lines := execute(t, cl, "query")
	require.Equal(t, fmt.Sprintf("%d rows returned", defaultQueryRows), lines[len(lines)-1])
}

func TestExplain(t *testing.T) {
	cl := setupCli(t, 0)
	lines := execute(t, cl, "explain 100 2;")
	require.Equal(t, 1, len(lines))
	require.True(t, strings.HasPrefix(lines[0], "200 references, "), lines[0])
	// 4 readers, at most 2 distinct docs each
	var refs, distinct, readers int
	_, err := fmt.Sscanf(lines[0], "%d references, %d distinct docs, %d readers fetched", &refs, &distinct, &readers)
	require.NoError(t, err)
	require.LessOrEqual(t, distinct, 8)
	require.Equal(t, 4, readers)
}

func TestRowCache(t *testing.T) {
	cl := setupCli(t, 100)
	lines := execute(t, cl, "cache")
	require.Equal(t, []string{"row cache: 0 entries, 0 gets, 0 hits, 0 misses"}, lines)

	// every reference points at doc 0, the second query is served from the cache
	execute(t, cl, "query 10 1")
	execute(t, cl, "query 10 1")
	stats := cl.cache.GetStats()
	require.Greater(t, stats.Hits, int64(0))
	lines = execute(t, cl, "cache")
	require.Equal(t, 1, len(lines))
	require.True(t, strings.HasPrefix(lines[0], "row cache: "))
}

func TestCacheDisabled(t *testing.T) {
	cl := setupCli(t, 0)
	require.Equal(t, []string{"row cache disabled"}, execute(t, cl, "cache;"))
}

func TestSetCommands(t *testing.T) {
	cl := setupCli(t, 0)
	require.Equal(t, []string{"OK"}, execute(t, cl, "set max_line_width 200"))
	require.Equal(t, 200, cl.maxLineWidth)
	require.Equal(t, []string{"Invalid max_line_width value: 3"}, execute(t, cl, "set max_line_width 3"))
	require.Equal(t, []string{"Unknown property: foo"}, execute(t, cl, "set foo 1"))
	require.Equal(t, []string{"Invalid set command. Should be set <prop_name> <prop_value>"}, execute(t, cl, "set foo"))

	// same seed, same query
	require.Equal(t, []string{"OK"}, execute(t, cl, "set seed 99"))
	first := execute(t, cl, "query 5 10")
	require.Equal(t, []string{"OK"}, execute(t, cl, "set seed 99"))
	second := execute(t, cl, "query 5 10")
	// the last two lines hold timings and the row count
	require.Equal(t, first[:len(first)-2], second[:len(second)-2])
}

func TestInvalidStatements(t *testing.T) {
	cl := setupCli(t, 0)
	require.Equal(t, []string{"Unknown statement: select"}, execute(t, cl, "select * from foo"))
	require.Equal(t, []string{"Invalid num_rows: x"}, execute(t, cl, "query x"))
	require.Equal(t, []string{"Invalid doc_range: 0"}, execute(t, cl, "query 3 0"))
	require.Equal(t, []string{"Invalid query command. Should be query [num_rows] [doc_range]"},
		execute(t, cl, "query 1 2 3"))
}

func TestNotStarted(t *testing.T) {
	cl := NewCli(conf.Config{}, transport.NewLocalTransports().CreateConnection, nil)
	_, err := cl.ExecuteStatement("readers")
	require.Error(t, err)
}

func TestStartNoAddresses(t *testing.T) {
	cfg := conf.Config{}
	cfg.ApplyDefaults()
	cl := NewCli(cfg, transport.NewLocalTransports().CreateConnection, nil)
	testutils.RequireErrorCode(t, cl.Start(), errors.InvalidConfiguration)
}

func TestStartNodeUnavailable(t *testing.T) {
	cfg := conf.Config{ReaderAddresses: []string{"nowhere"}}
	cfg.ApplyDefaults()
	cl := NewCli(cfg, transport.NewLocalTransports().CreateConnection, nil)
	err := cl.Start()
	require.Error(t, err)
	require.True(t, errors.IsUnavailableError(err))
}

func TestStartDuplicateReader(t *testing.T) {
	localTransports := transport.NewLocalTransports()
	addresses := startNodes(t, localTransports, generate(t, 2, 0), generate(t, 2, 1))
	cfg := conf.Config{ReaderAddresses: addresses}
	cfg.ApplyDefaults()
	cl := NewCli(cfg, localTransports.CreateConnection, nil)
	testutils.RequireErrorCode(t, cl.Start(), errors.InvalidConfiguration)
}

func TestQueryFailsWhenNodeGoesAway(t *testing.T) {
	localTransports := transport.NewLocalTransports()
	addresses := startNodes(t, localTransports, generate(t, 1, 0), generate(t, 1, 1))
	cfg := conf.Config{ReaderAddresses: addresses}
	cfg.ApplyDefaults()
	cl := NewCli(cfg, localTransports.CreateConnection, nil)
	require.NoError(t, cl.Start())
	defer func() {
		require.NoError(t, cl.Stop())
	}()
	localTransports.RemoveLocalServer(addresses[1])
	lines := execute(t, cl, "query 4")
	require.Equal(t, 1, len(lines))
	require.Contains(t, lines[0], "fetch for reader 1 failed")
}

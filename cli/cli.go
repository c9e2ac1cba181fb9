package cli

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spirit-labs/docfetch/conf"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/fetchcache"
	"github.com/spirit-labs/docfetch/fetchsvc"
	log "github.com/spirit-labs/docfetch/logger"
	"github.com/spirit-labs/docfetch/metrics"
	"github.com/spirit-labs/docfetch/transport"
	"github.com/spirit-labs/docfetch/types"
)

const (
	maxBufferedLines    = 1000
	defaultMaxLineWidth = 120
	defaultQueryRows    = 10
	statementTimeout    = time.Minute
)

// Cli runs statements against one or more fetch services. Readers are discovered on Start, a query then scatters
// synthetic document references over them and runs the deferred fetch stage to materialize the result.
type Cli struct {
	lock         sync.Mutex
	started      bool
	cfg          conf.Config
	connFactory  transport.ConnectionFactory
	fetchMetrics *metrics.FetchMetrics
	connCaches   *transport.ConnCaches
	remote       *fetchsvc.RemoteFetcher
	cache        *fetchcache.CachingFetcher
	stage        *fetch.Stage
	readers      []readerEntry
	rnd          *rand.Rand
	maxLineWidth int
	exitOnError  bool
}

type readerEntry struct {
	fetchsvc.ReaderInfo
	address string
}

// statement executes one command. args[0] is the command name. It either writes its own output, or returns a
// summary line which is written after it.
type statement func(c *Cli, args []string, out chan<- string) (string, error)

var statements = map[string]statement{
	"set":     (*Cli).execSet,
	"readers": (*Cli).execReaders,
	"cache":   (*Cli).execCache,
	"explain": (*Cli).execExplain,
	"query":   (*Cli).execQuery,
}

func NewCli(cfg conf.Config, connFactory transport.ConnectionFactory, fetchMetrics *metrics.FetchMetrics) *Cli {
	return &Cli{
		cfg:          cfg,
		connFactory:  connFactory,
		fetchMetrics: fetchMetrics,
		rnd:          rand.New(rand.NewSource(cfg.GenerateSeed)),
		maxLineWidth: defaultMaxLineWidth,
	}
}

func (c *Cli) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return nil
	}
	if len(c.cfg.ReaderAddresses) == 0 {
		return errors.NewInvalidConfigurationError("reader-addresses must be specified")
	}
	c.connCaches = transport.NewConnCaches(c.cfg.MaxConnectionsPerAddress, c.connFactory)
	locator := fetchsvc.StaticLocator{}
	c.remote = fetchsvc.NewRemoteFetcher(c.connCaches, locator)
	if err := c.start(locator); err != nil {
		c.connCaches.Close()
		return err
	}
	c.started = true
	return nil
}

func (c *Cli) start(locator fetchsvc.StaticLocator) error {
	readers, err := c.discoverReaders(locator)
	if err != nil {
		return err
	}
	c.readers = readers
	var fetcher fetch.Fetcher = c.remote
	if c.cfg.RowCacheMaxEntries > 0 {
		c.cache, err = fetchcache.NewCachingFetcher(c.remote, c.cfg.RowCacheMaxEntries)
		if err != nil {
			return err
		}
		fetcher = c.cache
	}
	c.stage = fetch.NewStage(fetcher, c.cfg.FetchConf(), c.fetchMetrics)
	return nil
}

// discoverReaders asks every address for its readers and fills locator. A reader must be served by one node only.
func (c *Cli) discoverReaders(locator fetchsvc.StaticLocator) ([]readerEntry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statementTimeout)
	defer cancel()
	var readers []readerEntry
	for _, address := range c.cfg.ReaderAddresses {
		infos, err := c.remote.ListReaders(ctx, address)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list readers at %s", address)
		}
		for _, info := range infos {
			if prev, exists := locator[info.ReaderID]; exists {
				return nil, errors.NewInvalidConfigurationError(
					fmt.Sprintf("reader %d is served by both %s and %s", info.ReaderID, prev, address))
			}
			locator[info.ReaderID] = address
			readers = append(readers, readerEntry{ReaderInfo: info, address: address})
		}
		log.Debugf("found %d readers at %s", len(infos), address)
	}
	sort.Slice(readers, func(i, j int) bool {
		return readers[i].ReaderID < readers[j].ReaderID
	})
	return readers, nil
}

func (c *Cli) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		c.connCaches.Close()
		c.started = false
	}
	return nil
}

// SetExitOnError makes the process exit when a statement fails because a fetch service can't be reached.
func (c *Cli) SetExitOnError(exitOnError bool) {
	c.exitOnError = exitOnError
}

// ExecuteStatement runs statement in the background. Output lines are sent on the returned channel, which is closed
// once the statement completes.
func (c *Cli) ExecuteStatement(stmt string) (chan string, error) {
	c.lock.Lock()
	started := c.started
	c.lock.Unlock()
	if !started {
		return nil, errors.Error("not started")
	}
	args := strings.Fields(strings.ToLower(strings.TrimSuffix(strings.TrimSpace(stmt), ";")))
	ch := make(chan string, maxBufferedLines)
	go func() {
		defer close(ch)
		if len(args) == 0 {
			return
		}
		exec, ok := statements[args[0]]
		if !ok {
			ch <- fmt.Sprintf("Unknown statement: %s", args[0])
			return
		}
		summary, err := exec(c, args, ch)
		if err != nil {
			ch <- c.checkErrorAndMaybeExit(err).Error()
			return
		}
		if summary != "" {
			ch <- summary
		}
	}()
	return ch, nil
}

func rowsReturned(n int) string {
	if n == 1 {
		return "1 row returned"
	}
	return fmt.Sprintf("%d rows returned", n)
}

func (c *Cli) execSet(args []string, _ chan<- string) (string, error) {
	if len(args) != 3 {
		return "", errors.Error("Invalid set command. Should be set <prop_name> <prop_value>")
	}
	name, val := args[1], args[2]
	c.lock.Lock()
	defer c.lock.Unlock()
	switch name {
	case "max_line_width":
		width, err := strconv.Atoi(val)
		if err != nil || width < minLineWidth || width > maxLineWidth {
			return "", errors.Errorf("Invalid max_line_width value: %s", val)
		}
		c.maxLineWidth = width
	case "seed":
		seed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return "", errors.Errorf("Invalid seed value: %s", val)
		}
		c.rnd = rand.New(rand.NewSource(seed))
	default:
		return "", errors.Errorf("Unknown property: %s", name)
	}
	return "OK", nil
}

var readersColumnNames = []string{"reader_id", "address", "num_docs", "partition_values"}
var readersColumnTypes = []types.ColumnType{types.ColumnTypeInt, types.ColumnTypeString, types.ColumnTypeInt,
	types.ColumnTypeString}

func (c *Cli) execReaders(_ []string, out chan<- string) (string, error) {
	c.lock.Lock()
	rows := make([]fetch.Row, 0, len(c.readers))
	for _, reader := range c.readers {
		rows = append(rows, fetch.Row{int64(reader.ReaderID), reader.address, int64(reader.NumDocs),
			fmt.Sprintf("%v", []any(reader.PartitionValues))})
	}
	tbl := newTable(readersColumnNames, readersColumnTypes, c.maxLineWidth)
	c.lock.Unlock()
	return rowsReturned(tbl.write(out, rows)), nil
}

func (c *Cli) execCache(_ []string, out chan<- string) (string, error) {
	if c.cache == nil {
		return "row cache disabled", nil
	}
	stats := c.cache.GetStats()
	return fmt.Sprintf("row cache: %d entries, %d gets, %d hits, %d misses", c.cache.Len(), stats.Gets, stats.Hits,
		stats.Misses), nil
}

func (c *Cli) execExplain(args []string, _ chan<- string) (string, error) {
	query, err := c.buildQuery(args)
	if err != nil {
		return "", err
	}
	stats, err := query.registrationStats()
	if err != nil {
		return "", err
	}
	return formatStats(stats), nil
}

func (c *Cli) execQuery(args []string, out chan<- string) (string, error) {
	query, err := c.buildQuery(args)
	if err != nil {
		return "", err
	}
	stats, err := query.registrationStats()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), statementTimeout)
	defer cancel()
	start := time.Now()
	rows, err := c.stage.Run(ctx, query.rows, query.layout)
	if err != nil {
		return "", err
	}
	c.lock.Lock()
	tbl := newTable(query.columnNames, query.columnTypes, c.maxLineWidth)
	c.lock.Unlock()
	n := tbl.write(out, rows)
	out <- fmt.Sprintf("%s in %d ms", formatStats(stats), time.Since(start).Milliseconds())
	return rowsReturned(n), nil
}

// buildQuery parses [num_rows] [doc_range] and builds the synthetic query.
func (c *Cli) buildQuery(args []string) (*syntheticQuery, error) {
	if len(args) > 3 {
		return nil, errors.Errorf("Invalid %s command. Should be %s [num_rows] [doc_range]", args[0], args[0])
	}
	numRows := defaultQueryRows
	docRange := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return nil, errors.Errorf("Invalid num_rows: %s", args[1])
		}
		numRows = n
	}
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			return nil, errors.Errorf("Invalid doc_range: %s", args[2])
		}
		docRange = n
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return buildSyntheticQuery(c.readers, numRows, docRange, c.rnd)
}

func formatStats(stats fetch.RegistryStats) string {
	return fmt.Sprintf("%d references, %d distinct docs, %d readers fetched", stats.RequireCalls,
		stats.DistinctDocs, stats.FetchRequiredReaders)
}

// checkErrorAndMaybeExit reports an unreachable fetch service as a connection error, or exits if the cli was told to.
// Other errors are returned as they are.
func (c *Cli) checkErrorAndMaybeExit(err error) error {
	if !errors.IsUnavailableError(err) {
		return err
	}
	if c.exitOnError {
		log.Errorf("connection error. Will exit. %v", err)
		os.Exit(1)
	}
	return errors.Errorf("connection error: %v", err)
}

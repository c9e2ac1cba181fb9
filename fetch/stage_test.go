package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/metrics"
	"github.com/stretchr/testify/require"
)

func TestStageRoundTrip(t *testing.T) {
	numReaders := 5
	docsPerReader := 20
	docs := map[ReaderID]map[DocID]Row{}
	for r := 0; r < numReaders; r++ {
		readerDocs := map[DocID]Row{}
		for d := 0; d < docsPerReader; d++ {
			readerDocs[DocID(d)] = Row{fmt.Sprintf("r%d-d%d", r, d)}
		}
		docs[ReaderID(r)] = readerDocs
	}
	fetcher := newTestFetcher(docs)

	rnd := rand.New(rand.NewSource(1))
	numRefs := 500
	rows := make([]ScatterRow, numRefs)
	type docKey struct {
		readerID ReaderID
		docID    DocID
	}
	distinct := map[docKey]struct{}{}
	for i := range rows {
		ref := DocRef{
			ReaderID:      ReaderID(rnd.Intn(numReaders)),
			DocID:         DocID(rnd.Intn(docsPerReader)),
			FetchRequired: true,
		}
		distinct[docKey{ref.ReaderID, ref.DocID}] = struct{}{}
		rows[i] = ScatterRow{Refs: []DocRef{ref}, Inline: Row{int64(i)}}
	}

	fetchMetrics := metrics.NewFetchMetrics(prometheus.NewRegistry())
	stage := NewStage(fetcher, testConf(), fetchMetrics)
	out, err := stage.Run(context.Background(), rows, Layout{InlineColumn(0), FetchedColumn(0, 0)})
	require.NoError(t, err)
	require.Equal(t, numRefs, len(out))
	for i, row := range out {
		ref := rows[i].Refs[0]
		require.Equal(t, Row{int64(i), fmt.Sprintf("r%d-d%d", ref.ReaderID, ref.DocID)}, row)
	}

	calls := fetcher.getCalls()
	require.LessOrEqual(t, len(calls), numReaders)
	requested := 0
	for _, call := range calls {
		requested += len(call.docIDs)
	}
	require.Equal(t, len(distinct), requested)
	require.Equal(t, 1.0, testutil.ToFloat64(fetchMetrics.Stages().WithLabelValues(metrics.OutcomeSuccess)))
}

func TestStageScenarioDuplicateDocs(t *testing.T) {
	fetcher := newTestFetcher(map[ReaderID]map[DocID]Row{
		1: {5: {"a:1"}, 3: {"a:2"}, 7: {"a:3"}},
	})
	out, err := NewStage(fetcher, testConf(), nil).Run(context.Background(), refRows(1, true, nil, 5, 3, 5, 7),
		Layout{FetchedColumn(0, 0)})
	require.NoError(t, err)
	require.Equal(t, []Row{{"a:1"}, {"a:2"}, {"a:1"}, {"a:3"}}, out)
}

func TestStageFailureReturnsNoRows(t *testing.T) {
	fetcher := newTestFetcher(map[ReaderID]map[DocID]Row{
		1: {1: {"a"}},
		2: {1: {"b"}},
	})
	fetcher.hook = func(ctx context.Context, readerID ReaderID) error {
		if readerID == 1 {
			return errors.NewFetchErrorf(errors.Unavailable, "reader 1 relocating")
		}
		return nil
	}
	rows := append(refRows(1, true, nil, 1), refRows(2, true, nil, 1)...)
	fetchMetrics := metrics.NewFetchMetrics(prometheus.NewRegistry())
	out, err := NewStage(fetcher, testConf(), fetchMetrics).Run(context.Background(), rows, Layout{FetchedColumn(0, 0)})
	require.Error(t, err)
	require.Nil(t, out)
	require.True(t, errors.IsFetchErrorWithCode(err, errors.RemoteFetchFailed))
	require.Equal(t, 1.0, testutil.ToFloat64(fetchMetrics.Stages().WithLabelValues(metrics.OutcomeFailure)))
}

func TestStageShortResponse(t *testing.T) {
	fetcher := newTestFetcher(map[ReaderID]map[DocID]Row{1: {1: {"a"}, 2: {"b"}}})
	fetcher.truncate = map[ReaderID]bool{1: true}
	out, err := NewStage(fetcher, testConf(), nil).Run(context.Background(), refRows(1, true, nil, 1, 2),
		Layout{FetchedColumn(0, 0)})
	require.True(t, errors.IsConsistencyViolation(err))
	require.Nil(t, out)
}

func TestStageInconsistentFetchRequired(t *testing.T) {
	fetcher := newTestFetcher(map[ReaderID]map[DocID]Row{1: {1: {"a"}, 2: {"b"}}})
	rows := append(refRows(1, true, nil, 1), refRows(1, false, nil, 2)...)
	_, err := NewStage(fetcher, testConf(), nil).Run(context.Background(), rows, Layout{FetchedColumn(0, 0)})
	require.True(t, errors.IsConsistencyViolation(err))
	require.Empty(t, fetcher.getCalls())
}

func TestStageInvalidLayout(t *testing.T) {
	fetcher := newTestFetcher(nil)
	_, err := NewStage(fetcher, testConf(), nil).Run(context.Background(), refRows(1, true, nil, 1),
		Layout{{Kind: 0}})
	require.True(t, errors.IsConsistencyViolation(err))
	require.Empty(t, fetcher.getCalls())
}

func TestStageFetcherFunc(t *testing.T) {
	var seen []DocID
	fetcher := FetcherFunc(func(ctx context.Context, readerID ReaderID, docIDs []DocID) ([]Row, error) {
		seen = append(seen, docIDs...)
		rows := make([]Row, len(docIDs))
		for i, docID := range docIDs {
			rows[i] = Row{int64(docID) * 10}
		}
		return rows, nil
	})
	out, err := NewStage(fetcher, testConf(), nil).Run(context.Background(), refRows(4, true, nil, 2, 1, 2),
		Layout{FetchedColumn(0, 0)})
	require.NoError(t, err)
	require.Equal(t, []DocID{2, 1}, seen)
	require.Equal(t, []Row{{int64(20)}, {int64(10)}, {int64(20)}}, out)
}

func TestStageZeroConf(t *testing.T) {
	fetcher := newTestFetcher(map[ReaderID]map[DocID]Row{1: {1: {"a"}}})
	type result struct {
		rows []Row
		err  error
	}
	done := make(chan result, 1)
	go func() {
		out, err := NewStage(fetcher, Conf{}, nil).Run(context.Background(), refRows(1, true, nil, 1),
			Layout{FetchedColumn(0, 0)})
		done <- result{out, err}
	}()
	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Equal(t, []Row{{"a"}}, res.rows)
	case <-time.After(5 * time.Second):
		require.Fail(t, "stage with zero conf did not complete")
	}
}

package cli

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/types"
)

// Column positions in the schema of generated readers.
const (
	idColumn      = 0
	nameColumn    = 1
	scoreColumn   = 2
	createdColumn = 4
)

type syntheticQuery struct {
	rows        []fetch.ScatterRow
	layout      fetch.Layout
	columnNames []string
	columnTypes []types.ColumnType
}

/*
buildSyntheticQuery produces the output of a scatter phase joining two relations. Row i references a document of
reader i mod n on the left and of reader i+1 mod n on the right, doc ids are drawn from the first docRange documents of
each reader. A small docRange makes many references share a document, which is what the fetch stage deduplicates.
docRange of zero means the whole reader.

The layout assumes readers with the generated schema. The region column is only projected when every reader has a
partition value.
*/
func buildSyntheticQuery(readers []readerEntry, numRows int, docRange int, rnd *rand.Rand) (*syntheticQuery, error) {
	var candidates []readerEntry
	withRegion := true
	for _, reader := range readers {
		if reader.NumDocs == 0 {
			continue
		}
		if len(reader.PartitionValues) == 0 {
			withRegion = false
		}
		candidates = append(candidates, reader)
	}
	if len(candidates) == 0 {
		return nil, errors.New("no readers with documents to query")
	}
	rows := make([]fetch.ScatterRow, numRows)
	for i := range rows {
		left := candidates[i%len(candidates)]
		right := candidates[(i+1)%len(candidates)]
		rows[i] = fetch.ScatterRow{
			Refs:   []fetch.DocRef{randomRef(left, docRange, rnd), randomRef(right, docRange, rnd)},
			Inline: fetch.Row{int64(i)},
		}
	}
	q := &syntheticQuery{rows: rows}
	q.addColumn("row", types.ColumnTypeInt, fetch.InlineColumn(0))
	q.addColumn("l_id", types.ColumnTypeInt, fetch.FetchedColumn(0, idColumn))
	q.addColumn("l_name", types.ColumnTypeString, fetch.FetchedColumn(0, nameColumn))
	if withRegion {
		q.addColumn("l_region", types.ColumnTypeString, fetch.PartitionColumn(0, 0))
	}
	q.addColumn("r_name", types.ColumnTypeString, fetch.FetchedColumn(1, nameColumn))
	q.addColumn("r_score", types.ColumnTypeFloat, fetch.FetchedColumn(1, scoreColumn))
	q.addColumn("r_created", types.ColumnTypeTimestamp, fetch.FetchedColumn(1, createdColumn))
	return q, nil
}

func randomRef(reader readerEntry, docRange int, rnd *rand.Rand) fetch.DocRef {
	limit := reader.NumDocs
	if docRange > 0 && docRange < limit {
		limit = docRange
	}
	return fetch.DocRef{
		ReaderID:        reader.ReaderID,
		DocID:           fetch.DocID(rnd.Intn(limit)),
		FetchRequired:   true,
		PartitionValues: reader.PartitionValues,
	}
}

func (q *syntheticQuery) addColumn(name string, columnType types.ColumnType, source fetch.ColumnSource) {
	q.columnNames = append(q.columnNames, name)
	q.columnTypes = append(q.columnTypes, columnType)
	q.layout = append(q.layout, source)
}

// registrationStats registers the query in a throwaway registry to count references and distinct documents.
func (q *syntheticQuery) registrationStats() (fetch.RegistryStats, error) {
	registry := fetch.NewRegistry(uuid.New())
	defer registry.Release()
	if err := registry.RegisterAll(q.rows); err != nil {
		return fetch.RegistryStats{}, err
	}
	return registry.Stats(), nil
}

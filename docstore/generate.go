package docstore

import (
	"fmt"
	"math/rand"

	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/types"
)

// GeneratedSchema is the schema of the readers built by Generate: id, name, score, price, created.
var GeneratedSchema = []types.ColumnType{
	types.ColumnTypeInt,
	types.ColumnTypeString,
	types.ColumnTypeFloat,
	&types.DecimalType{Precision: 10, Scale: 2},
	types.ColumnTypeTimestamp,
}

type GenerateOpts struct {
	NumReaders    int
	DocsPerReader int
	// FirstReaderID lets several nodes generate disjoint reader ids
	FirstReaderID fetch.ReaderID
	Seed          int64
}

// Generate builds a store of synthetic readers. Doc ids run from 0 to DocsPerReader-1 in every reader and each reader
// has a single partition value, its region. The output only depends on the options.
func Generate(opts GenerateOpts) (*Store, error) {
	rnd := rand.New(rand.NewSource(opts.Seed))
	store := NewStore()
	for r := 0; r < opts.NumReaders; r++ {
		readerID := opts.FirstReaderID + fetch.ReaderID(r)
		reader := NewReader(readerID, GeneratedSchema, fetch.Row{RegionForReader(readerID)})
		for d := 0; d < opts.DocsPerReader; d++ {
			row := fetch.Row{
				int64(d),
				fmt.Sprintf("reader-%d-doc-%d", readerID, d),
				rnd.Float64() * 100,
				types.NewDecimalFromInt64(rnd.Int63n(100000), 10, 2),
				types.NewTimestamp(1_700_000_000_000 + int64(d)*1000),
			}
			if err := reader.Put(fetch.DocID(d), row); err != nil {
				return nil, err
			}
		}
		if err := store.AddReader(reader); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func RegionForReader(readerID fetch.ReaderID) string {
	return fmt.Sprintf("region-%d", int(readerID)%3)
}

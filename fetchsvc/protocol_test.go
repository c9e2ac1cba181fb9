package fetchsvc

import (
	"testing"

	"github.com/spirit-labs/docfetch/errors"
	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/types"
	"github.com/stretchr/testify/require"
)

func TestFetchRequestSerialization(t *testing.T) {
	req := FetchRequest{ReaderID: 12, DocIDs: []fetch.DocID{5, 3, 7, 1 << 30}}
	buff := req.Serialize([]byte("prefix"))
	var decoded FetchRequest
	require.NoError(t, decoded.Deserialize(buff[6:]))
	require.Equal(t, req, decoded)
}

func TestFetchRequestMalformed(t *testing.T) {
	var req FetchRequest
	require.True(t, errors.IsConsistencyViolation(req.Deserialize([]byte{1, 2, 3})))
	buff := (&FetchRequest{ReaderID: 1, DocIDs: []fetch.DocID{1, 2}}).Serialize(nil)
	require.True(t, errors.IsConsistencyViolation(req.Deserialize(buff[:len(buff)-1])))
	require.True(t, errors.IsConsistencyViolation(req.Deserialize(append(buff, 0))))
}

func TestFetchResponseAllTypes(t *testing.T) {
	decType := &types.DecimalType{Precision: 12, Scale: 3}
	schema := []types.ColumnType{
		types.ColumnTypeInt,
		types.ColumnTypeFloat,
		types.ColumnTypeBool,
		decType,
		types.ColumnTypeString,
		types.ColumnTypeBytes,
		types.ColumnTypeTimestamp,
	}
	dec, err := types.NewDecimalFromString("1234.567", 12, 3)
	require.NoError(t, err)
	resp := FetchResponse{
		Schema: schema,
		Rows: []fetch.Row{
			{int64(-7), 1.5, true, dec, "foo", []byte("bar"), types.NewTimestamp(1000)},
			{nil, nil, nil, nil, nil, nil, nil},
		},
	}
	var decoded FetchResponse
	require.NoError(t, decoded.Deserialize(resp.Serialize(nil), 2))
	require.Equal(t, 2, len(decoded.Rows))
	require.Equal(t, len(schema), len(decoded.Schema))
	for i, ct := range schema {
		require.True(t, types.ColumnTypesEqual(ct, decoded.Schema[i]))
	}
	require.Equal(t, resp.Rows[0], decoded.Rows[0])
	require.Equal(t, fetch.Row{nil, nil, nil, nil, nil, nil, nil}, decoded.Rows[1])
}

func TestFetchResponseEmpty(t *testing.T) {
	resp := FetchResponse{Schema: []types.ColumnType{types.ColumnTypeInt}}
	var decoded FetchResponse
	require.NoError(t, decoded.Deserialize(resp.Serialize(nil), 0))
	require.Empty(t, decoded.Rows)
}

func TestFetchResponseTruncated(t *testing.T) {
	resp := FetchResponse{
		Schema: []types.ColumnType{types.ColumnTypeString},
		Rows:   []fetch.Row{{"hello"}, {"world"}},
	}
	buff := resp.Serialize(nil)
	var decoded FetchResponse
	err := decoded.Deserialize(buff[:len(buff)-8], 2)
	require.True(t, errors.IsConsistencyViolation(err))
}

func TestFetchResponseRowCountBounded(t *testing.T) {
	// no columns and a row count of 2^32-1
	buff := []byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}
	var decoded FetchResponse
	require.True(t, errors.IsConsistencyViolation(decoded.Deserialize(buff, 10)))
	require.Nil(t, decoded.Rows)

	resp := FetchResponse{Schema: []types.ColumnType{types.ColumnTypeInt}, Rows: []fetch.Row{{int64(1)}, {int64(2)}}}
	require.True(t, errors.IsConsistencyViolation(decoded.Deserialize(resp.Serialize(nil), 1)))
}

func TestFetchResponseNoColumns(t *testing.T) {
	resp := FetchResponse{Rows: []fetch.Row{{}, {}, {}}}
	var decoded FetchResponse
	require.NoError(t, decoded.Deserialize(resp.Serialize(nil), 3))
	require.Equal(t, 3, len(decoded.Rows))
}

func TestFetchResponseUnknownColumnType(t *testing.T) {
	buff := []byte{1, 0, 0, 0, 99, 0, 0, 0, 0}
	var decoded FetchResponse
	require.True(t, errors.IsConsistencyViolation(decoded.Deserialize(buff, 1)))
}

func TestListReadersResponse(t *testing.T) {
	resp := ListReadersResponse{Readers: []ReaderInfo{
		{ReaderID: 1, NumDocs: 10, PartitionValues: fetch.Row{"region-1", int64(2024)}},
		{ReaderID: 2, NumDocs: 0},
	}}
	buff, err := resp.Serialize(nil)
	require.NoError(t, err)
	var decoded ListReadersResponse
	require.NoError(t, decoded.Deserialize(buff))
	require.Equal(t, resp, decoded)
}

func TestListReadersUnsupportedPartitionValue(t *testing.T) {
	resp := ListReadersResponse{Readers: []ReaderInfo{{ReaderID: 1, PartitionValues: fetch.Row{struct{}{}}}}}
	_, err := resp.Serialize(nil)
	require.Error(t, err)
}

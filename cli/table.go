package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spirit-labs/docfetch/fetch"
	"github.com/spirit-labs/docfetch/types"
)

const (
	minLineWidth = 10
	maxLineWidth = 10000
	minColWidth  = 5
)

// fixedWidths holds the widths of column types whose values have a bounded length.
var fixedWidths = map[types.ColumnTypeID]int{
	types.ColumnTypeIDInt:       20,
	types.ColumnTypeIDBool:      5,
	types.ColumnTypeIDTimestamp: 26,
}

type table struct {
	names  []string
	widths []int
}

// newTable sizes the columns so a line fits in lineWidth. Fixed width columns get their full width and the others
// share what is left. If that leaves the shared columns too narrow every column gets the same width.
func newTable(names []string, columnTypes []types.ColumnType, lineWidth int) *table {
	widths := make([]int, len(names))
	if len(names) == 0 {
		return &table{}
	}
	// a line is '|' followed by " value |" per column
	avail := lineWidth - 1 - 3*len(names)
	var shared []int
	for i, ct := range columnTypes {
		w, ok := fixedWidths[ct.ID()]
		if !ok {
			shared = append(shared, i)
			continue
		}
		widths[i] = max(w, len(names[i]))
		avail -= widths[i]
	}
	if avail < 0 || (len(shared) > 0 && avail/len(shared) < minColWidth) {
		even := max((lineWidth-1)/len(names)-3, minColWidth)
		for i := range widths {
			widths[i] = even
		}
	} else {
		for _, i := range shared {
			widths[i] = avail / len(shared)
		}
	}
	return &table{names: names, widths: widths}
}

func (t *table) border() string {
	n := 1
	for _, w := range t.widths {
		n += w + 3
	}
	return "+" + strings.Repeat("-", n-2) + "+"
}

func (t *table) line(values []string) string {
	var sb strings.Builder
	sb.WriteByte('|')
	for i, w := range t.widths {
		var v string
		if i < len(values) {
			v = values[i]
		}
		if len(v) > w {
			v = v[:w-2] + ".."
		}
		sb.WriteByte(' ')
		sb.WriteString(v)
		sb.WriteString(strings.Repeat(" ", w-len(v)))
		sb.WriteString(" |")
	}
	return sb.String()
}

// write sends the table to out and returns the number of rows.
func (t *table) write(out chan<- string, rows []fetch.Row) int {
	border := t.border()
	out <- border
	out <- t.line(t.names)
	out <- border
	values := make([]string, len(t.widths))
	for _, row := range rows {
		for i := range values {
			values[i] = ""
			if i < len(row) {
				values[i] = formatValue(row[i])
			}
		}
		out <- t.line(values)
	}
	if len(rows) > 0 {
		out <- border
	}
	return len(rows)
}

func formatValue(val any) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', 6, 64)
	case bool:
		return strconv.FormatBool(v)
	case types.Decimal:
		return v.String()
	case string:
		return v
	case []byte:
		// printable ASCII only
		return strings.Map(func(r rune) rune {
			if r >= 32 && r <= 126 {
				return r
			}
			return '.'
		}, string(v))
	case types.Timestamp:
		return time.UnixMilli(v.Val).UTC().Format("2006-01-02 15:04:05.000000")
	default:
		return fmt.Sprintf("%v", v)
	}
}

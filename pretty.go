package sqlkit

import (
	"sort"

	"github.com/jedib0t/go-pretty/table"
)

// RenderRows renders a result set as an aligned text table for debugging.
// Columns appear in sorted order so the output is stable.
func RenderRows(rows []Row) string {
	if len(rows) == 0 {
		return "(no rows)"
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	w := table.NewWriter()
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	w.AppendHeader(header)
	for _, r := range rows {
		out := make(table.Row, len(cols))
		for i, c := range cols {
			out[i] = r[c]
		}
		w.AppendRow(out)
	}
	return w.Render()
}

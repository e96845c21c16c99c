// Package sqlgen builds repeated-placeholder SQL fragments for batched
// inserts, respecting SQLite's bound-parameter ceiling. Statements over
// the ceiling are split into chunks of whole rows.
package sqlgen

import (
	"fmt"
	"strings"
)

// DefaultParamCeiling is SQLite's historical SQLITE_MAX_VARIABLE_NUMBER.
// Newer builds allow far more, but 999 is the portable floor and the
// chunking arithmetic keys off it.
const DefaultParamCeiling = 999

// ChunkSize returns how many rows of paramsPerRow bound parameters fit
// under ceiling in one statement.
func ChunkSize(ceiling, paramsPerRow int) (int, error) {
	if paramsPerRow <= 0 {
		return 0, fmt.Errorf("chunk size: params per row must be positive, got %d", paramsPerRow)
	}
	if ceiling < paramsPerRow {
		return 0, fmt.Errorf("chunk size: ceiling %d cannot fit a row of %d parameters", ceiling, paramsPerRow)
	}
	return ceiling / paramsPerRow, nil
}

// Chunk splits n items into [start, end) ranges of at most size items.
func Chunk(n, size int) [][2]int {
	if n <= 0 || size <= 0 {
		return nil
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// Placeholders renders "(?, ?, ?)" for one row of cols parameters.
func Placeholders(cols int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 0; i < cols; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('?')
	}
	b.WriteByte(')')
	return b.String()
}

// RepeatRows renders rows copies of Placeholders(cols) joined by commas,
// the VALUES body of a multi-row insert.
func RepeatRows(rows, cols int) string {
	row := Placeholders(cols)
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = row
	}
	return strings.Join(parts, ", ")
}

// RepeatSelects renders rows copies of a SELECT fragment joined by
// UNION ALL. Used where a row's values must be correlated against an
// existing table (fulltext searchid resolution).
func RepeatSelects(fragment string, rows int) string {
	parts := make([]string, rows)
	for i := range parts {
		parts[i] = fragment
	}
	return strings.Join(parts, " UNION ALL ")
}

package postgres

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder builds parameterized WHERE clauses. Conditions with an
// empty value are skipped so optional filters can be added unconditionally.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends "column = $n" unless value is empty.
func (wb *WhereBuilder) Add(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.AddArg(column+" = $%d", value)
}

// AddArg appends a condition with one placeholder, written as %d in format.
func (wb *WhereBuilder) AddArg(format string, value any) *WhereBuilder {
	wb.conditions = append(wb.conditions, fmt.Sprintf(format, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
	return wb
}

// AddRaw appends a condition that takes no arguments.
func (wb *WhereBuilder) AddRaw(condition string) *WhereBuilder {
	wb.conditions = append(wb.conditions, condition)
	return wb
}

// AddTimeRange bounds column to [start, end] inclusive. A zero bound is
// left open, and two zero bounds add nothing.
func (wb *WhereBuilder) AddTimeRange(column string, start, end time.Time) *WhereBuilder {
	if !start.IsZero() {
		wb.AddArg(column+" >= $%d", start)
	}
	if !end.IsZero() {
		wb.AddArg(column+" <= $%d", end)
	}
	return wb
}

// AddPrefix appends a case-insensitive prefix match over columns.
func (wb *WhereBuilder) AddPrefix(prefix string, columns ...string) *WhereBuilder {
	if prefix == "" || len(columns) == 0 {
		return wb
	}
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", quoteIdentifier(col), wb.argIndex)
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
	wb.args = append(wb.args, escapeLike(prefix)+"%")
	wb.argIndex++
	return wb
}

// Build returns the clause with a leading " WHERE", or "" and nil args
// when there are no conditions.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// NextArgIndex returns the number of the next placeholder, for LIMIT and
// OFFSET appended after the clause.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// quoteIdentifier quotes a SQL identifier, doubling embedded quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

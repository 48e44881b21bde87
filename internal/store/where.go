package store

import (
	"fmt"
	"strings"
	"time"
)

// WhereBuilder assembles a parameterized WHERE clause.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends "column = $n". Empty values are skipped.
func (wb *WhereBuilder) Add(column, value string) *WhereBuilder {
	if value == "" {
		return wb
	}
	return wb.add(fmt.Sprintf("%s = $%d", column, wb.argIndex), value)
}

// AddAny appends "column = ANY($n)". An empty list is skipped.
func (wb *WhereBuilder) AddAny(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	return wb.add(fmt.Sprintf("%s = ANY($%d)", column, wb.argIndex), values)
}

// AddHalfOpen appends "column >= $n AND column < $n+1".
func (wb *WhereBuilder) AddHalfOpen(column string, start, end time.Time) *WhereBuilder {
	wb.add(fmt.Sprintf("%s >= $%d", column, wb.argIndex), start)
	return wb.add(fmt.Sprintf("%s < $%d", column, wb.argIndex), end)
}

// AddClosed appends "column >= $n AND column <= $n+1".
func (wb *WhereBuilder) AddClosed(column string, start, end time.Time) *WhereBuilder {
	wb.add(fmt.Sprintf("%s >= $%d", column, wb.argIndex), start)
	return wb.add(fmt.Sprintf("%s <= $%d", column, wb.argIndex), end)
}

func (wb *WhereBuilder) add(cond string, arg any) *WhereBuilder {
	wb.conditions = append(wb.conditions, cond)
	wb.args = append(wb.args, arg)
	wb.argIndex++
	return wb
}

// NextArgIndex is the placeholder number the next condition will use.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// Build returns " WHERE ..." and its arguments, or "" and nil when empty.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// quoteIdentifier double-quotes a SQL identifier, escaping embedded quotes.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

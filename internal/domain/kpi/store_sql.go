package kpi

import "fmt"

// argClause appends an equality predicate bound to the nth positional
// argument, e.g. argClause(" AND kpi_id", 2) -> " AND kpi_id = $2".
func argClause(column string, n int) string {
	return fmt.Sprintf("%s = $%d", column, n)
}

// pageClause binds LIMIT/OFFSET when the page sets a limit.
func pageClause(args []any, p Page) ([]any, string) {
	if p.Limit <= 0 {
		return args, ""
	}
	args = append(args, p.Limit, p.Offset)
	return args, fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
}

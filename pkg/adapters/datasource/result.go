package datasource

import (
	"fmt"

	"github.com/spf13/cast"
)

// RawResponse is one of the shapes a Gateway reports on success:
// SelectedRows, UpdatedCount or OtherTagged.
type RawResponse interface {
	rawResponse()
}

// SelectedRows is the response to a row-returning SELECT.
// Column identifiers may arrive in any representation.
type SelectedRows struct {
	Columns []any
	Rows    [][]any
}

// UpdatedCount is the response to a data-modifying statement.
type UpdatedCount struct {
	Count int64
}

// OtherTagged is any other response, identified by its command tag.
type OtherTagged struct {
	Tag     string
	Columns []any
	Rows    [][]any
}

func (SelectedRows) rawResponse() {}
func (UpdatedCount) rawResponse() {}
func (OtherTagged) rawResponse()  {}

// CommandKind classifies a normalized result.
type CommandKind int

const (
	CommandSelected CommandKind = iota
	CommandUpdated
	CommandOther
)

// Command identifies what a result came from. Tag is set for CommandOther.
type Command struct {
	Kind CommandKind
	Tag  string
}

func (c Command) String() string {
	switch c.Kind {
	case CommandSelected:
		return "selected"
	case CommandUpdated:
		return "updated"
	default:
		return c.Tag
	}
}

// UpdatedColumn is the single column name of an Updated result.
const UpdatedColumn = "count"

// Result is the canonical shape every successful statement is reported in.
// NumRows always equals len(Rows).
type Result struct {
	Command Command  `json:"command"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	NumRows int      `json:"num_rows"`
}

// EmptyResult is returned by operations that acknowledge without touching the
// database (begin, commit, rollback, close).
func EmptyResult(tag string) *Result {
	return &Result{
		Command: Command{Kind: CommandOther, Tag: tag},
		Columns: []string{},
		Rows:    [][]any{},
	}
}

// Normalize maps a raw gateway response to a Result.
func Normalize(raw RawResponse) (*Result, error) {
	switch r := raw.(type) {
	case SelectedRows:
		return tabular(Command{Kind: CommandSelected}, r.Columns, r.Rows), nil
	case *SelectedRows:
		return tabular(Command{Kind: CommandSelected}, r.Columns, r.Rows), nil
	case UpdatedCount:
		return updated(r.Count), nil
	case *UpdatedCount:
		return updated(r.Count), nil
	case OtherTagged:
		return tabular(Command{Kind: CommandOther, Tag: r.Tag}, r.Columns, r.Rows), nil
	case *OtherTagged:
		return tabular(Command{Kind: CommandOther, Tag: r.Tag}, r.Columns, r.Rows), nil
	default:
		return nil, fmt.Errorf("unsupported driver response %T", raw)
	}
}

func updated(count int64) *Result {
	return &Result{
		Command: Command{Kind: CommandUpdated},
		Columns: []string{UpdatedColumn},
		Rows:    [][]any{{count}},
		NumRows: 1,
	}
}

func tabular(cmd Command, columns []any, rows [][]any) *Result {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = ColumnName(c)
	}
	if rows == nil {
		rows = [][]any{}
	}
	return &Result{
		Command: cmd,
		Columns: names,
		Rows:    rows,
		NumRows: len(rows),
	}
}

// ColumnName coerces a driver-reported column identifier to a string.
// Character lists ([]rune) and byte slices are decoded as text.
func ColumnName(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []byte:
		return string(c)
	case []rune:
		return string(c)
	case fmt.Stringer:
		return c.String()
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

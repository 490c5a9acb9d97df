package datasource

// Query is a statement supplied by the caller. Name is only used for logging
// and correlation; no server-side preparation happens.
type Query struct {
	Name      string
	Statement string
}

// Param is one positional parameter. Order must match the placeholders in
// the statement.
type Param struct {
	Type  string // declared type, e.g. "integer", "varchar"
	Value any
}

// Values returns the bare parameter values in order.
func Values(params []Param) []any {
	if len(params) == 0 {
		return nil
	}
	values := make([]any, len(params))
	for i, p := range params {
		values[i] = p.Value
	}
	return values
}

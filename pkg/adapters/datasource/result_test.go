package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type columnID struct{ name string }

func (c columnID) String() string { return c.name }

func TestNormalize_UpdatedCount(t *testing.T) {
	for _, raw := range []RawResponse{UpdatedCount{Count: 7}, &UpdatedCount{Count: 7}} {
		result, err := Normalize(raw)
		require.NoError(t, err)

		assert.Equal(t, CommandUpdated, result.Command.Kind)
		assert.Equal(t, []string{"count"}, result.Columns)
		assert.Equal(t, [][]any{{int64(7)}}, result.Rows)
		assert.Equal(t, 1, result.NumRows)
	}
}

func TestNormalize_UpdatedZero(t *testing.T) {
	result, err := Normalize(UpdatedCount{})
	require.NoError(t, err)

	assert.Equal(t, [][]any{{int64(0)}}, result.Rows)
	assert.Equal(t, 1, result.NumRows)
}

func TestNormalize_SelectedRows(t *testing.T) {
	raw := SelectedRows{
		Columns: []any{[]rune("a"), []byte("b"), "c", columnID{"d"}, 5},
		Rows: [][]any{
			{1, "x", nil, true, 2.5},
			{2, "y", nil, false, 3.5},
		},
	}

	result, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, CommandSelected, result.Command.Kind)
	assert.Equal(t, []string{"a", "b", "c", "d", "5"}, result.Columns)
	assert.Equal(t, raw.Rows, result.Rows, "rows must pass through unchanged")
	assert.Equal(t, 2, result.NumRows)
	assert.Equal(t, "selected", result.Command.String())
}

func TestNormalize_SelectedNoRows(t *testing.T) {
	result, err := Normalize(&SelectedRows{Columns: []any{"id"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"id"}, result.Columns)
	assert.NotNil(t, result.Rows)
	assert.Empty(t, result.Rows)
	assert.Equal(t, 0, result.NumRows)
}

func TestNormalize_OtherTagged(t *testing.T) {
	result, err := Normalize(OtherTagged{Tag: "show", Columns: []any{"name"}, Rows: [][]any{{"events"}}})
	require.NoError(t, err)

	assert.Equal(t, Command{Kind: CommandOther, Tag: "show"}, result.Command)
	assert.Equal(t, "show", result.Command.String())
	assert.Equal(t, []string{"name"}, result.Columns)
	assert.Equal(t, 1, result.NumRows)

	result, err = Normalize(&OtherTagged{Tag: "create"})
	require.NoError(t, err)
	assert.Empty(t, result.Columns)
	assert.Empty(t, result.Rows)
	assert.Equal(t, 0, result.NumRows)
}

func TestNormalize_Unsupported(t *testing.T) {
	_, err := Normalize(nil)
	assert.Error(t, err)
}

func TestEmptyResult(t *testing.T) {
	for _, tag := range []string{"begin", "commit", "rollback", "close"} {
		result := EmptyResult(tag)
		assert.Equal(t, Command{Kind: CommandOther, Tag: tag}, result.Command)
		assert.Empty(t, result.Columns)
		assert.Empty(t, result.Rows)
		assert.Equal(t, 0, result.NumRows)
	}
}

func TestColumnName(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"plain", "plain"},
		{[]byte("bytes"), "bytes"},
		{[]rune("runes"), "runes"},
		{columnID{"stringer"}, "stringer"},
		{42, "42"},
		{int64(-1), "-1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ColumnName(tt.in))
	}
}

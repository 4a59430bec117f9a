package seqset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolveExpand(t *testing.T) {
	list, err := Parse("1,2:3,4:*")
	require.NoError(t, err)

	got := list.Resolve(10).Expand()
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, got)
}

func TestStarForms(t *testing.T) {
	tests := []struct {
		in       string
		max      uint32
		expected []uint32
	}{
		{"*", 7, []uint32{7}},
		{"*:*", 7, []uint32{7}},
		{"5:*", 7, []uint32{5, 6, 7}},
		{"*:5", 7, []uint32{5, 6, 7}},
		{"3:1", 7, []uint32{1, 2, 3}},
	}
	for _, tt := range tests {
		list, err := Parse(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.expected, list.Resolve(tt.max).Expand(), "input %q", tt.in)
	}
}

func TestEmptySessionYieldsEmptySet(t *testing.T) {
	list, err := Parse("1:100")
	require.NoError(t, err)
	assert.Empty(t, list.Resolve(0).Expand())
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "1:", ":5", "a", "1,,2", "0", "1:b", "-3"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrSyntax, "input %q", in)
	}
}

func TestClampToMax(t *testing.T) {
	list, err := Parse("8:20")
	require.NoError(t, err)
	assert.Equal(t, []uint32{8, 9, 10}, list.Resolve(10).Expand())

	list, err = Parse("15:20")
	require.NoError(t, err)
	assert.Empty(t, list.Resolve(10).Expand())
}

func TestContains(t *testing.T) {
	list, err := Parse("2:4,9,12:*")
	require.NoError(t, err)

	assert.True(t, list.Contains(3, 20))
	assert.True(t, list.Contains(9, 20))
	assert.True(t, list.Contains(15, 20))
	assert.False(t, list.Contains(5, 20))
	assert.False(t, list.Contains(25, 20), "values beyond max never match")
}

func TestString(t *testing.T) {
	tests := []string{"1", "1:5", "1,2:3,4:*", "*", "*:9"}
	for _, in := range tests {
		list, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, in, list.String())
	}
}

// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package orderedset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestUnion asserts commutativity and deduplication of the set union.
func TestUnion(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		a, b []string
		want []string
	}{
		{
			name: "disjoint",
			a:    []string{"x", "y"},
			b:    []string{"z"},
			want: []string{"x", "y", "z"},
		},
		{
			name: "overlap",
			a:    []string{"x", "y", "z"},
			b:    []string{"y", "w"},
			want: []string{"x", "y", "z", "w"},
		},
		{
			name: "equal length ties break on content",
			a:    []string{"b", "c"},
			b:    []string{"a", "c"},
			want: []string{"a", "c", "b"},
		},
		{
			name: "duplicates within one side collapse",
			a:    []string{"x", "x", "y"},
			b:    nil,
			want: []string{"x", "y"},
		},
		{
			name: "both empty",
			a:    nil,
			b:    nil,
			want: []string{},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, Union(tc.a, tc.b))
			require.Equal(t, Union(tc.a, tc.b), Union(tc.b, tc.a))
		})
	}
}

// TestContainsRemove exercises the membership helpers.
func TestContainsRemove(t *testing.T) {
	t.Parallel()

	ids := []string{"a", "b", "c"}
	require.True(t, Contains(ids, "b"))
	require.False(t, Contains(ids, "d"))

	require.Equal(t, []string{"a", "c"}, Remove(ids, "b"))
	require.Equal(t, ids, Remove(ids, "missing"))
}

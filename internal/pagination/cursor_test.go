package pagination

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("k%04d", i)
	}
	return out
}

func TestFetchWalksWholeListWithoutGapsOrDuplicates(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct{ m, n int }{{23, 5}, {20, 5}, {1, 3}, {7, 7}, {100, 1}} {
		t.Run(fmt.Sprintf("m%d_n%d", tc.m, tc.n), func(t *testing.T) {
			all := keys(tc.m)
			w := SliceWindow(all)

			seen := map[string]bool{}
			var ordered []string
			cursor := ""
			pages := 0
			for {
				p, err := Fetch(ctx, w, cursor, tc.n)
				require.NoError(t, err)
				if p.Done {
					assert.Empty(t, p.Keys)
					break
				}
				pages++
				for _, k := range p.Keys {
					assert.False(t, seen[k], "duplicate key %s", k)
					seen[k] = true
					ordered = append(ordered, k)
				}
				cursor = p.NextCursor
				require.LessOrEqual(t, pages, tc.m, "pagination did not terminate")
			}

			assert.Len(t, seen, tc.m)
			assert.Equal(t, (tc.m+tc.n-1)/tc.n, pages)
			for i := 1; i < len(ordered); i++ {
				assert.Greater(t, ordered[i-1], ordered[i], "keys must be newest first")
			}
		})
	}
}

func TestFetchFirstPageCursorIsOldestKey(t *testing.T) {
	p, err := Fetch(context.Background(), SliceWindow(keys(10)), "", 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"k0009", "k0008", "k0007", "k0006"}, p.Keys)
	assert.Equal(t, "k0006", p.NextCursor)
	assert.False(t, p.Done)
}

func TestFetchCursorConcurrentlyDeleted(t *testing.T) {
	all := keys(10)
	p, err := Fetch(context.Background(), SliceWindow(all), "", 3)
	require.NoError(t, err)
	require.Equal(t, "k0007", p.NextCursor)

	// k0007 disappears between page fetches
	remaining := append(append([]string{}, all[:7]...), all[8:]...)
	p2, err := Fetch(context.Background(), SliceWindow(remaining), p.NextCursor, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"k0006", "k0005", "k0004"}, p2.Keys)
	assert.Equal(t, "k0004", p2.NextCursor)
}

func TestFetchEmptyList(t *testing.T) {
	p, err := Fetch(context.Background(), SliceWindow(nil), "", 5)
	require.NoError(t, err)
	assert.True(t, p.Done)
	assert.Empty(t, p.Keys)
}

func TestHydrateSkipsMissing(t *testing.T) {
	p := Page{Keys: []string{"c", "b", "a"}, NextCursor: "a"}
	r := Hydrate(p, map[string]int{"c": 3, "a": 1})
	assert.Equal(t, []int{3, 1}, r.Items)
	assert.Equal(t, "a", r.NextCursor)
}

func TestNormalizeSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, NormalizeSize(0))
	assert.Equal(t, MaxPageSize, NormalizeSize(1000))
	assert.Equal(t, 7, NormalizeSize(7))
}

package idx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/core-miniproject/stay/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	id := idx.New()

	got, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, got)

	got, err = idx.Parse("  " + strings.ToLower(id.String()) + "\n")
	require.NoError(t, err)
	require.Equal(t, id, got)

	for _, s := range []string{"", "   ", "missing", "member-1", "guest@example.com"} {
		_, err := idx.Parse(s)
		require.ErrorIs(t, err, idx.ErrInvalid, "input %q", s)
	}
}

func TestIdsSortByCreation(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	prev := idx.NewAt(at)
	for range 100 {
		next := idx.NewAt(at)
		require.Less(t, prev.String(), next.String())
		prev = next
	}

	later := idx.NewAt(at.Add(time.Millisecond))
	require.Less(t, prev.String(), later.String())
}

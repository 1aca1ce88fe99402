package idx_test

import (
	"sort"
	"testing"
	"time"

	"github.com/aussiebroadwan/trackr/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(" " + id.String() + " ")
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-ulid", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		_, err := idx.Parse(in)
		require.ErrorIs(t, err, idx.ErrInvalid, in)
	}
}

func TestSameMillisecondStaysOrdered(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()

	ids := make([]string, 50)
	for i := range ids {
		ids[i] = idx.NewAt(at).String()
	}

	require.True(t, sort.StringsAreSorted(ids))
	require.WithinDuration(t, at, idx.ID(ids[0]).Time(), time.Millisecond)
}

func TestTimeOfInvalidID(t *testing.T) {
	require.True(t, idx.ID("nope").Time().IsZero())
	require.True(t, idx.Zero.Time().IsZero())
}

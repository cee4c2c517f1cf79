package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	u, err := Parse("users://alice/profile/avatar")
	require.NoError(t, err)
	require.Equal(t, "users", u.Scheme)
	require.Equal(t, "alice", u.Authority)
	require.Equal(t, "profile/avatar", u.Path)
	require.Equal(t, "users://alice", u.ProgramKey())
	require.Equal(t, "users://alice/profile/avatar", u.String())
}

func TestParse_NoPath(t *testing.T) {
	u, err := Parse("users://alice")
	require.NoError(t, err)
	require.Equal(t, "", u.Path)
	require.Equal(t, "users://alice", u.String())
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{"", "no-scheme", "scheme:/onlyoneslash/x", "://missing-scheme"} {
		_, err := Parse(raw)
		require.ErrorIs(t, err, ErrMalformed, "raw=%q", raw)
	}
}

func TestFirstSegment(t *testing.T) {
	seg, more := FirstSegment("a/b/c")
	require.Equal(t, "a", seg)
	require.True(t, more)

	seg, more = FirstSegment("a")
	require.Equal(t, "a", seg)
	require.False(t, more)
}

package node

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	err := NewError(KindNotFound, "no such uri", nil)
	require.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	require.False(t, errors.Is(err, &Error{Kind: KindAuth}))
}

func TestKindOf_WrapsNonNodeErrors(t *testing.T) {
	require.Equal(t, KindBackend, KindOf(fmt.Errorf("boom")))
	require.Equal(t, Kind(""), KindOf(nil))
	require.Equal(t, KindTimeout, KindOf(NewError(KindTimeout, "", nil)))
}

func TestKindOf_UnwrapsChain(t *testing.T) {
	base := NewError(KindHashMismatch, "bad hash", nil)
	wrapped := fmt.Errorf("store failed: %w", base)
	require.Equal(t, KindHashMismatch, KindOf(wrapped))
}

func TestCheckBatchSize(t *testing.T) {
	uris := make([]string, MaxBatchSize+1)
	err := CheckBatchSize(uris)
	require.NotNil(t, err)
	require.Equal(t, KindBatchTooLarge, err.Kind)

	require.Nil(t, CheckBatchSize(make([]string, MaxBatchSize)))
}

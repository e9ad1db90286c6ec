package reqid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, id, got)
	require.NotEmpty(t, String(ctx))

	_, ok = FromContext(context.Background())
	require.False(t, ok)
	require.Empty(t, String(context.Background()))
}

func TestContextSurvivesDetach(t *testing.T) {
	ctx, id := NewContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	got, ok := FromContext(context.WithoutCancel(ctx))
	require.True(t, ok)
	require.Equal(t, id, got)
}

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitbuilder587/translation-pipeline/internal/circuit"
	"github.com/kitbuilder587/translation-pipeline/internal/domain"
	"github.com/kitbuilder587/translation-pipeline/internal/failure"
)

func TestBuildPolicies(t *testing.T) {
	t.Run("negative keeps table", func(t *testing.T) {
		table, err := buildPolicies(-1)
		require.NoError(t, err)
		assert.Equal(t, 5, table.Lookup(failure.KindRateLimited).MaxRetries)
	})

	t.Run("override applies to retryable kinds only", func(t *testing.T) {
		table, err := buildPolicies(1)
		require.NoError(t, err)

		assert.Equal(t, 1, table.Lookup(failure.KindRateLimited).MaxRetries)
		assert.Equal(t, 1, table.Lookup(failure.KindNetworkUnreachable).MaxRetries)
		assert.True(t, table.Lookup(failure.KindCredentialInvalid).IsFatal)
		assert.Equal(t, 0, table.Lookup(failure.KindCredentialInvalid).MaxRetries)
	})
}

type countingNotifier struct {
	reviews  int
	circuits int
}

func (c *countingNotifier) NotifyReview(context.Context, *domain.ManualReview) error {
	c.reviews++
	return nil
}

func (c *countingNotifier) NotifyCircuit(context.Context, string, circuit.State, circuit.State) error {
	c.circuits++
	return nil
}

func TestNotifierRef(t *testing.T) {
	ref := &notifierRef{}
	ctx := context.Background()

	require.NoError(t, ref.NotifyReview(ctx, &domain.ManualReview{}))
	require.NoError(t, ref.NotifyCircuit(ctx, "openrouter", circuit.StateClosed, circuit.StateOpen))

	n := &countingNotifier{}
	ref.Set(n)
	require.NoError(t, ref.NotifyReview(ctx, &domain.ManualReview{}))
	require.NoError(t, ref.NotifyCircuit(ctx, "openrouter", circuit.StateClosed, circuit.StateOpen))

	assert.Equal(t, 1, n.reviews)
	assert.Equal(t, 1, n.circuits)
}

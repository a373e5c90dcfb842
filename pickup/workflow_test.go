package pickup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/allot/id"
	"github.com/xraph/allot/pickup"
	"github.com/xraph/allot/store/memory"
	"github.com/xraph/allot/types"
)

func TestPickupLifecycle(t *testing.T) {
	ctx := context.Background()
	w := pickup.NewWorkflow(memory.New())

	ticket, err := w.Create(ctx, "order-1", id.NewLocationID(), nil)
	require.NoError(t, err)
	assert.Equal(t, pickup.StatePending, ticket.State)
	assert.Len(t, ticket.Code, pickup.CodeLength)
	assert.True(t, pickup.ValidCode(ticket.Code))

	wrong := "ZZZZZZ"
	if wrong == ticket.Code {
		wrong = "222222"
	}
	_, err = w.Complete(ctx, ticket.ID, wrong)
	require.ErrorIs(t, err, pickup.ErrInvalidCode)
	got, err := w.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, pickup.StatePending, got.State)

	ready, err := w.MarkReady(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, pickup.StateReady, ready.State)
	assert.NotNil(t, ready.ReadyAt)

	done, err := w.Complete(ctx, ticket.ID, ticket.Code)
	require.NoError(t, err)
	assert.Equal(t, pickup.StatePickedUp, done.State)
	assert.NotNil(t, done.PickedUpAt)

	_, err = w.Complete(ctx, ticket.ID, ticket.Code)
	require.ErrorIs(t, err, pickup.ErrNotReady)

	_, err = w.Cancel(ctx, ticket.ID, "changed mind")
	require.ErrorIs(t, err, pickup.ErrAlreadyPickedUp)
}

func TestPickupInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	w := pickup.NewWorkflow(memory.New())

	ticket, err := w.Create(ctx, "order-2", id.NewLocationID(), nil)
	require.NoError(t, err)

	_, err = w.MarkReady(ctx, ticket.ID)
	require.NoError(t, err)
	_, err = w.MarkReady(ctx, ticket.ID)
	require.ErrorIs(t, err, types.ErrInvalidStateTransition)

	cancelled, err := w.Cancel(ctx, ticket.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, pickup.StateCancelled, cancelled.State)
	assert.Equal(t, "out of stock", cancelled.CancelReason)

	_, err = w.Cancel(ctx, ticket.ID, "again")
	require.ErrorIs(t, err, types.ErrInvalidStateTransition)
	_, err = w.MarkReady(ctx, ticket.ID)
	require.ErrorIs(t, err, types.ErrInvalidStateTransition)
}

func TestPickupCodeRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	next := 0
	gen := pickup.CodeGeneratorFunc(func() (string, error) {
		c := codes[next]
		next++
		return c, nil
	})
	w := pickup.NewWorkflow(s, pickup.WithCodeGenerator(gen))

	first, err := w.Create(ctx, "o1", id.NewLocationID(), nil)
	require.NoError(t, err)
	second, err := w.Create(ctx, "o2", id.NewLocationID(), nil)
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)

	byCode, err := s.GetPickupByCode(ctx, "BBBBBB")
	require.NoError(t, err)
	assert.Equal(t, second.ID.String(), byCode.ID.String())
}

func TestPickupCodeExhausted(t *testing.T) {
	ctx := context.Background()
	gen := pickup.CodeGeneratorFunc(func() (string, error) { return "SAME23", nil })
	w := pickup.NewWorkflow(memory.New(), pickup.WithCodeGenerator(gen), pickup.WithCodeAttempts(3))

	_, err := w.Create(ctx, "o1", id.NewLocationID(), nil)
	require.NoError(t, err)
	_, err = w.Create(ctx, "o2", id.NewLocationID(), nil)
	require.ErrorIs(t, err, pickup.ErrCodeExhausted)
}

func TestPickupRejectsMalformedCodes(t *testing.T) {
	gen := pickup.CodeGeneratorFunc(func() (string, error) { return "abc", nil })
	w := pickup.NewWorkflow(memory.New(), pickup.WithCodeGenerator(gen))
	_, err := w.Create(context.Background(), "o", id.NewLocationID(), nil)
	require.Error(t, err)

	failing := pickup.CodeGeneratorFunc(func() (string, error) { return "", errors.New("entropy") })
	w = pickup.NewWorkflow(memory.New(), pickup.WithCodeGenerator(failing))
	_, err = w.Create(context.Background(), "o", id.NewLocationID(), nil)
	require.Error(t, err)
}

func TestRandomCodes(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := pickup.RandomCodes{}.NewCode()
		require.NoError(t, err)
		require.True(t, pickup.ValidCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"A2B3C4", true},
		{"222222", true},
		{"a2b3c4", false},
		{"A2B3C", false},
		{"A2B3C4D", false},
		{"A2-3C4", false},
		{"A0B3C4", false},
		{"AOB3C4", false},
		{"A1B3C4", false},
		{"AIB3C4", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pickup.ValidCode(tt.code), tt.code)
	}
}

func TestCodeAlphabetSkipsLookalikes(t *testing.T) {
	assert.Len(t, pickup.CodeAlphabet, 32)
	assert.NotContains(t, pickup.CodeAlphabet, "0")
	assert.NotContains(t, pickup.CodeAlphabet, "O")
	assert.NotContains(t, pickup.CodeAlphabet, "1")
	assert.NotContains(t, pickup.CodeAlphabet, "I")

	for i := 0; i < 200; i++ {
		code, err := pickup.RandomCodes{}.NewCode()
		require.NoError(t, err)
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "1")
		assert.NotContains(t, code, "I")
	}
}

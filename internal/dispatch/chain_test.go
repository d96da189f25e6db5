package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reqerrors "github.com/Aman-CERP/reqfind/internal/errors"
)

func claimAll(name string, calls *[]string) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) (any, bool, error) {
		*calls = append(*calls, name)
		return name, true, nil
	})
}

func pass(name string, calls *[]string) Handler {
	return HandlerFunc(func(ctx context.Context, ev Event) (any, bool, error) {
		*calls = append(*calls, name)
		return nil, false, nil
	})
}

func TestChain_FirstClaimWins(t *testing.T) {
	var calls []string
	c := NewChain(nil)
	c.Register("low", 1, claimAll("low", &calls))
	c.Register("high", 10, claimAll("high", &calls))
	c.Register("middle", 5, pass("middle", &calls))

	res, err := c.Dispatch(context.Background(), Event{Kind: "anything"})

	require.NoError(t, err)
	assert.Equal(t, "high", res.Handler)
	assert.Equal(t, "high", res.Value)
	assert.Equal(t, []string{"high"}, calls, "later handlers never run")
}

func TestChain_PassesUntilClaimed(t *testing.T) {
	var calls []string
	c := NewChain(nil)
	c.Register("a", 5, pass("a", &calls))
	c.Register("b", 5, pass("b", &calls))
	c.Register("c", 1, claimAll("c", &calls))
	c.Register("d", 0, claimAll("d", &calls))

	res, err := c.Dispatch(context.Background(), Event{Kind: "x"})

	require.NoError(t, err)
	assert.Equal(t, "c", res.Handler)
	assert.Equal(t, []string{"a", "b", "c"}, calls)
	assert.Equal(t, 4, c.Len())
}

func TestChain_Unclaimed(t *testing.T) {
	c := NewChain(nil)
	c.Register("only", 0, KindHandler("ping", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return "pong", nil
	}))

	_, err := c.Dispatch(context.Background(), Event{Kind: "nope"})

	require.Error(t, err)
	assert.Equal(t, reqerrors.CategoryProtocol, reqerrors.GetCategory(err))
	assert.Equal(t, reqerrors.ErrCodeUnknownKind, reqerrors.GetCode(err))
}

func TestChain_ClaimWithError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	c := NewChain(nil)
	c.Register("fails", 1, KindHandler("x", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, boom
	}))
	c.Register("fallback", 0, claimAll("fallback", &calls))

	res, err := c.Dispatch(context.Background(), Event{Kind: "x"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "fails", res.Handler)
	assert.Empty(t, calls, "a claimed event is not retried elsewhere")
}

func TestKindHandler_PassesPayload(t *testing.T) {
	h := KindHandler("echo", func(ctx context.Context, p json.RawMessage) (any, error) {
		return string(p), nil
	})

	val, claimed, err := h.Handle(context.Background(), Event{Kind: "echo", Payload: json.RawMessage(`{"a":1}`)})

	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, `{"a":1}`, val)
}

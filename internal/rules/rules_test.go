package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineFunc(t *testing.T) {
	var got any
	engine := EngineFunc(func(ctx context.Context, input any) (any, error) {
		got = input
		return map[string]any{"ok": true}, nil
	})

	out, err := engine.Apply(context.Background(), "in")
	require.NoError(t, err)
	assert.Equal(t, "in", got)
	assert.Equal(t, map[string]any{"ok": true}, out)
}

func TestError(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Status: 422, Message: "rule 3 is invalid", Err: cause}

	assert.Equal(t, "rule 3 is invalid", err.Error())
	assert.Equal(t, 422, err.StatusCode())
	assert.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("apply: %w", err)
	var re *Error
	require.ErrorAs(t, wrapped, &re)
	assert.Equal(t, 422, re.Status)
}

func TestErrorf(t *testing.T) {
	err := Errorf(0, "unknown op %q", "frobnicate")
	assert.Equal(t, `unknown op "frobnicate"`, err.Message)
	assert.Zero(t, err.StatusCode())
}

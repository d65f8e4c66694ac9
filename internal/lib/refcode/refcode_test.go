package refcode

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_FirstAttemptFree(t *testing.T) {
	code, err := Generate(context.Background(), "rcpt", func(_ context.Context, _ string) (bool, error) {
		return false, nil
	})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(code, "rcpt_"))
	assert.Len(t, code, len("rcpt_")+12)
}

func TestGenerate_RetriesUntilFree(t *testing.T) {
	var calls int
	code, err := Generate(context.Background(), "rcpt", func(_ context.Context, _ string) (bool, error) {
		calls++
		return calls < 3, nil
	})

	require.NoError(t, err)
	assert.NotEmpty(t, code)
	assert.Equal(t, 3, calls)
}

func TestGenerate_Exhausted(t *testing.T) {
	_, err := Generate(context.Background(), "rcpt", func(_ context.Context, _ string) (bool, error) {
		return true, nil
	})

	assert.ErrorIs(t, err, ErrExhausted)
}

func TestGenerate_StorageError(t *testing.T) {
	storageErr := errors.New("db down")
	_, err := Generate(context.Background(), "rcpt", func(_ context.Context, _ string) (bool, error) {
		return false, storageErr
	})

	assert.ErrorIs(t, err, storageErr)
}

func TestGenerate_CodesDiffer(t *testing.T) {
	seen := map[string]bool{}
	for range 10 {
		code, err := Generate(context.Background(), "ref", func(_ context.Context, c string) (bool, error) {
			return seen[c], nil
		})
		require.NoError(t, err)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

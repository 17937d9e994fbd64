package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpret(t *testing.T) {
	t.Parallel()

	t.Run("success with banner", func(t *testing.T) {
		doc, err := Interpret(&Output{Stdout: []byte("Loading...\n{\"coef\":[0.5]}\n")})
		require.NoError(t, err)
		assert.JSONEq(t, `{"coef":[0.5]}`, string(doc))
	})

	t.Run("non-zero exit wins over valid JSON", func(t *testing.T) {
		_, err := Interpret(&Output{
			ExitCode: 1,
			Stdout:   []byte(`{"coef":[0.5]}`),
			Stderr:   []byte("matrix is singular"),
		})
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, KindComputation, e.Kind)
		assert.Equal(t, 1, e.ExitCode)
		assert.Equal(t, "matrix is singular", e.Stderr)
	})

	t.Run("argument rejection", func(t *testing.T) {
		_, err := Interpret(&Output{ExitCode: 2, Stderr: []byte("error: unknown option --lagz")})
		assert.Equal(t, KindArgumentRejected, KindOf(err))
	})

	t.Run("no JSON", func(t *testing.T) {
		_, err := Interpret(&Output{Stdout: []byte("all done")})
		assert.Equal(t, KindMalformedOutput, KindOf(err))
		require.ErrorIs(t, err, ErrNoJSON)
	})

	t.Run("broken JSON", func(t *testing.T) {
		_, err := Interpret(&Output{Stdout: []byte(`{"coef": [0.5`)})
		assert.Equal(t, KindMalformedOutput, KindOf(err))
		require.ErrorIs(t, err, ErrInvalidJSON)
	})

	t.Run("truncated document", func(t *testing.T) {
		doc, err := Interpret(&Output{Stdout: []byte(`{"irf":[{"h":0,"v":1.25},{"h":1,"v":}`)})
		assert.Nil(t, doc)
		assert.Equal(t, KindMalformedOutput, KindOf(err))
		require.ErrorIs(t, err, ErrInvalidJSON)
	})
}

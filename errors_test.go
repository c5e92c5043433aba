package mediacache

import (
	"fmt"
	"testing"

	"github.com/hupe1980/mediacache/chunk"
	"github.com/stretchr/testify/assert"
)

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", chunk.ErrNotFound)))
	assert.False(t, IsNotFound(&FetchError{Message: "x"}))

	assert.True(t, IsFetchError(fmt.Errorf("wrapped: %w", &chunk.FetchError{Message: "timeout"})))
	assert.False(t, IsFetchError(ErrNotFound))
}

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestETag(t *testing.T) {
	a := ETag([]byte(`{"submission_count":1}`))
	assert.Equal(t, a, ETag([]byte(`{"submission_count":1}`)))
	assert.NotEqual(t, a, ETag([]byte(`{"submission_count":2}`)))
	assert.Len(t, a, 34)
	assert.Equal(t, byte('"'), a[0])
}

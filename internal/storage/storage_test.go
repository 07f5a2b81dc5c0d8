package storage_test

import (
	"testing"

	"github.com/OCAP2/clustermap/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	assert.NoError(t, storage.ValidateName("berlin"))
	assert.NoError(t, storage.ValidateName("my map 2"))

	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "c:d"} {
		assert.ErrorIs(t, storage.ValidateName(name), storage.ErrInvalidName, name)
	}
}

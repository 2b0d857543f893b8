package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenUnsupportedFormat(t *testing.T) {
	_, err := Open("model.pb", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".pb")
}

func TestOpenMissingTFLite(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "food101_model.tflite"), Options{})
	assert.Error(t, err)
}

func TestPinBatch(t *testing.T) {
	assert.Equal(t, []int64{1, 224, 224, 3}, pinBatch([]int64{-1, 224, 224, 3}))
	assert.Equal(t, []int64{1, 101}, pinBatch([]int64{1, 101}))
}

package spool

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLocal_NetworkFilesystemRejected(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not", "yet", "created")
	var inspected string
	err := checkLocalWithDetector(dir, func(p string) (string, error) {
		inspected = p
		return "NFS", nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetworkFilesystem))
	assert.Contains(t, err.Error(), "SPOOL_DIR")
	// The nearest existing parent is inspected.
	assert.Equal(t, filepath.Dir(filepath.Dir(filepath.Dir(dir))), inspected)
}

func TestCheckLocal_LocalFilesystemAccepted(t *testing.T) {
	err := checkLocalWithDetector(t.TempDir(), func(string) (string, error) {
		return "0xef53", nil
	})
	assert.NoError(t, err)
}

func TestCheckLocal_DetectorFailure(t *testing.T) {
	err := checkLocalWithDetector(t.TempDir(), func(string) (string, error) {
		return "", errors.New("statfs broke")
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNetworkFilesystem))
}

func TestCheckLocal_EmptyDir(t *testing.T) {
	assert.Error(t, checkLocalWithDetector("", func(string) (string, error) { return "", nil }))
}

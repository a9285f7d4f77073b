package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/iot-thing-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCertStoreLayout(t *testing.T) {
	base := t.TempDir()
	store := NewCertStore(base, newTestLogger())
	require.NoError(t, store.Prepare())
	// preparing twice keeps the tree
	require.NoError(t, store.Prepare())

	for _, dir := range []string{"key", "csr", "crt", "bin"} {
		assert.DirExists(t, filepath.Join(base, dir))
	}

	assert.Equal(t, filepath.Join(base, "key", "ss-1.key"), store.KeyPath("ss-1"))
	assert.Equal(t, filepath.Join(base, "csr", "ss-1.csr"), store.CSRPath("ss-1"))
	assert.Equal(t, filepath.Join(base, "crt", "ss-1.crt"), store.CertPath("ss-1"))
	assert.Equal(t, filepath.Join(base, "bin", "ss-1"), store.BinDir("ss-1"))
	assert.Equal(t, "file://"+base, store.LocationURI())
}

func TestCertStoreSaveCertificate(t *testing.T) {
	store := NewCertStore(t.TempDir(), newTestLogger())
	ctx := context.Background()

	path, err := store.SaveCertificate(ctx, "ss-1", []byte("PEM"))
	require.NoError(t, err)
	assert.Equal(t, store.CertPath("ss-1"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PEM", string(data))

	_, err = store.SaveCertificate(ctx, "../escape", []byte("PEM"))
	require.ErrorIs(t, err, interfaces.ErrInvalidDevice)

	_, err = store.SaveCertificate(ctx, "", []byte("PEM"))
	require.ErrorIs(t, err, interfaces.ErrInvalidDevice)
}

func TestCertStoreRead(t *testing.T) {
	store := NewCertStore(t.TempDir(), newTestLogger())
	require.NoError(t, store.Prepare())

	require.NoError(t, os.WriteFile(store.KeyPath("ss-1"), []byte("KEY"), 0600))
	require.NoError(t, os.WriteFile(store.CSRPath("ss-1"), []byte("CSR"), 0644))

	key, err := store.ReadKey("ss-1")
	require.NoError(t, err)
	assert.Equal(t, "KEY", string(key))

	csr, err := store.ReadCSR("ss-1")
	require.NoError(t, err)
	assert.Equal(t, "CSR", string(csr))

	_, err = store.ReadKey("ss-2")
	require.ErrorIs(t, err, interfaces.ErrDeviceNotFound)
}

func TestCertStoreListDevices(t *testing.T) {
	store := NewCertStore(t.TempDir(), newTestLogger())

	_, err := store.ListDevices()
	require.Error(t, err, "listing before Prepare must fail")

	require.NoError(t, store.Prepare())

	for _, name := range []string{"ss-2", "ss-1", "ss-10"} {
		require.NoError(t, os.WriteFile(store.CSRPath(name), []byte("CSR"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(store.CSRPath("x")), "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(filepath.Dir(store.CSRPath("x")), "dir.csr"), 0755))

	names, err := store.ListDevices()
	require.NoError(t, err)
	assert.Equal(t, []string{"ss-1", "ss-10", "ss-2"}, names)
}

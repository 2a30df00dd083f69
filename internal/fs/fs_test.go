package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "regions")
	path := filepath.Join(dir, "R_Overworld_0_0_0.rgn")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(Default, path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic_FaultKeepsOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "R_Overworld_1_0_0.rgn")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	cases := []struct {
		name  string
		fault Fault
	}{
		{"write", Fault{FailAfterBytes: 2}},
		{"sync", Fault{FailOnSync: true}},
		{"close", Fault{FailOnClose: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ffs := NewFaultyFS(nil)
			ffs.AddRule(".tmp", tc.fault)

			err := WriteFileAtomic(ffs, path, []byte("new contents"), 0o644)
			require.ErrorIs(t, err, ErrInjected)
			assert.Zero(t, ffs.Renames())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "old", string(data))

			_, err = os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestFaultyFS_CustomError(t *testing.T) {
	boom := errors.New("disk full")
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("chunk", Fault{FailAfterBytes: 1, Err: boom})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "chunk.bin"), os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte{1, 2})
	require.ErrorIs(t, err, boom)

	ffs.ClearRules()
	g, err := ffs.OpenFile(filepath.Join(t.TempDir(), "chunk.bin"), os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = g.Write([]byte{1})
	require.NoError(t, err)
	require.NoError(t, g.Close())
}

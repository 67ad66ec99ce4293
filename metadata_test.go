package pqueue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gofish2020/pqueue/chunkstore"
)

func TestMetadataLoadFresh(t *testing.T) {
	ms, err := newMetadataStore(t.TempDir(), false)
	require.Nil(t, err)

	meta, err := ms.Load(Metadata{ChunkSize: 100})
	require.Nil(t, err)

	assert.Equal(t, uint32(100), meta.ChunkSize)
	assert.Equal(t, uint64(0), meta.Size)
	assert.Equal(t, chunkstore.Cursor{}, meta.Head)
	assert.Equal(t, chunkstore.Cursor{}, meta.Tail)
}

func TestMetadataSaveLoad(t *testing.T) {
	ms, err := newMetadataStore(t.TempDir(), false)
	require.Nil(t, err)

	want := Metadata{
		ChunkSize:   7,
		Compression: true,
		Size:        12345,
		Head:        chunkstore.Cursor{Index: 3, Count: 5, Offset: 987},
		Tail:        chunkstore.Cursor{Index: 1, Count: 2, Offset: 64},
	}
	require.Nil(t, ms.Save(&want))

	got, err := ms.Load(Metadata{})
	require.Nil(t, err)
	assert.Equal(t, want, got)
}

func TestMetadataSaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	ms, err := newMetadataStore(dir, false)
	require.Nil(t, err)

	first := Metadata{ChunkSize: 10, Size: 1}
	require.Nil(t, ms.Save(&first))
	second := Metadata{ChunkSize: 10, Size: 2}
	require.Nil(t, ms.Save(&second))

	got, err := ms.Load(Metadata{})
	require.Nil(t, err)
	assert.Equal(t, uint64(2), got.Size)

	// 替换完成后目录里不能留下临时文件
	entries, err := os.ReadDir(dir)
	require.Nil(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, metaFileName, entries[0].Name())
}

func TestMetadataTempSubdir(t *testing.T) {
	dir := t.TempDir()
	ms, err := newMetadataStore(dir, true)
	require.Nil(t, err)

	info, err := os.Stat(filepath.Join(dir, tempSubdirName))
	require.Nil(t, err)
	assert.True(t, info.IsDir())

	meta := Metadata{ChunkSize: 100, Size: 9}
	require.Nil(t, ms.Save(&meta))

	got, err := ms.Load(Metadata{})
	require.Nil(t, err)
	assert.Equal(t, uint64(9), got.Size)
}

func TestMetadataTornFileDetected(t *testing.T) {
	dir := t.TempDir()
	ms, err := newMetadataStore(dir, false)
	require.Nil(t, err)

	meta := Metadata{ChunkSize: 100, Size: 3}
	require.Nil(t, ms.Save(&meta))

	// 截短或篡改都必须被发现
	buf, err := os.ReadFile(ms.path)
	require.Nil(t, err)

	require.Nil(t, os.WriteFile(ms.path, buf[:metadataSize-4], 0644))
	_, err = ms.Load(Metadata{})
	assert.ErrorIs(t, err, ErrInvalidMetadata)

	buf[12] ^= 0xFF
	require.Nil(t, os.WriteFile(ms.path, buf, 0644))
	_, err = ms.Load(Metadata{})
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

package pqueue

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/gofish2020/pqueue/chunkstore"
)

const (
	metaFileName   = "info"
	tempSubdirName = "_temp"
)

const (
	// 元数据固定长度（小端）
	// | crc32(4) | flags(4) | chunksize(4) | size(8) | head idx(4) cnt(4) off(8) | tail idx(4) cnt(4) off(8) |
	metadataSize = 52

	flagCompression = uint32(1) << 0
)

var ErrInvalidMetadata = errors.New("metadata file is corrupted")

// Metadata is the queue bookkeeping persisted as one atomically replaced
// unit. Size always equals the number of records between Tail and Head.
type Metadata struct {
	ChunkSize   uint32
	Compression bool
	Size        uint64
	Head        chunkstore.Cursor
	Tail        chunkstore.Cursor
}

func (m *Metadata) encode() []byte {
	buf := make([]byte, metadataSize)
	var flags uint32
	if m.Compression {
		flags |= flagCompression
	}
	binary.LittleEndian.PutUint32(buf[4:8], flags)
	binary.LittleEndian.PutUint32(buf[8:12], m.ChunkSize)
	binary.LittleEndian.PutUint64(buf[12:20], m.Size)
	binary.LittleEndian.PutUint32(buf[20:24], m.Head.Index)
	binary.LittleEndian.PutUint32(buf[24:28], m.Head.Count)
	binary.LittleEndian.PutUint64(buf[28:36], uint64(m.Head.Offset))
	binary.LittleEndian.PutUint32(buf[36:40], m.Tail.Index)
	binary.LittleEndian.PutUint32(buf[40:44], m.Tail.Count)
	binary.LittleEndian.PutUint64(buf[44:52], uint64(m.Tail.Offset))

	binary.LittleEndian.PutUint32(buf[:4], crc32.ChecksumIEEE(buf[4:]))
	return buf
}

func (m *Metadata) decode(buf []byte) error {
	if len(buf) != metadataSize {
		return ErrInvalidMetadata
	}
	if crc32.ChecksumIEEE(buf[4:]) != binary.LittleEndian.Uint32(buf[:4]) {
		return ErrInvalidMetadata
	}
	flags := binary.LittleEndian.Uint32(buf[4:8])
	m.Compression = flags&flagCompression != 0
	m.ChunkSize = binary.LittleEndian.Uint32(buf[8:12])
	m.Size = binary.LittleEndian.Uint64(buf[12:20])
	m.Head.Index = binary.LittleEndian.Uint32(buf[20:24])
	m.Head.Count = binary.LittleEndian.Uint32(buf[24:28])
	m.Head.Offset = int64(binary.LittleEndian.Uint64(buf[28:36]))
	m.Tail.Index = binary.LittleEndian.Uint32(buf[36:40])
	m.Tail.Count = binary.LittleEndian.Uint32(buf[40:44])
	m.Tail.Offset = int64(binary.LittleEndian.Uint64(buf[44:52]))
	return nil
}

// metadataStore 元数据的全有或全无持久化
type metadataStore struct {
	path string
	// 临时文件目录，必须和path同一个文件系统，否则rename不是原子的
	tempDir string
}

func newMetadataStore(dir string, tempSubdir bool) (*metadataStore, error) {
	tempDir := dir
	if tempSubdir {
		tempDir = filepath.Join(dir, tempSubdirName)
		if err := os.MkdirAll(tempDir, os.ModePerm); err != nil {
			return nil, err
		}
	}
	return &metadataStore{
		path:    filepath.Join(dir, metaFileName),
		tempDir: tempDir,
	}, nil
}

// Load returns the persisted metadata, or a freshly initialized one with
// zeroed cursors when the directory has never held a queue.
func (ms *metadataStore) Load(fresh Metadata) (Metadata, error) {
	buf, err := os.ReadFile(ms.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fresh, nil
		}
		return Metadata{}, err
	}
	var meta Metadata
	if err := meta.decode(buf); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Save writes the metadata into a temporary file and atomically replaces
// the canonical file with it. A reader after any crash observes either the
// fully-old or the fully-new metadata, never a mix.
func (ms *metadataStore) Save(meta *Metadata) error {
	tmp, err := os.CreateTemp(ms.tempDir, metaFileName+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(meta.encode()); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}

	// POSIX rename within one filesystem is atomic
	if err := os.Rename(tmpName, ms.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

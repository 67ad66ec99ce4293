// 一个目录下有多个chunk文件 -> 每个文件保存固定条数的记录 -> 记录按帧存储（帧头 + payload）
// 写端追加到编号最大的chunk（head），读端从编号最小的chunk顺序读（tail），读完即删。

package chunkstore

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store hands out append and sequential-read access to the numbered chunk
// files inside one directory. It keeps no cursor state of its own; callers
// own the head/tail positions.
type Store struct {
	dir string
	// lru (内存缓存) 最近读过的帧【key = 文件编号+偏移 & value = payload】
	// 帧只追加不改写，缓存永远不会失效
	readCache *lru.Cache[framePos, []byte]
}

type framePos struct {
	index  uint32
	offset int64
}

// NewStore creates the directory if absent and returns a store over it.
// cacheFrames > 0 enables an LRU cache of recently read frames.
func NewStore(dir string, cacheFrames int) (*Store, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	s := &Store{dir: dir}
	if cacheFrames > 0 {
		cache, err := lru.New[framePos, []byte](cacheFrames)
		if err != nil {
			return nil, err
		}
		s.readCache = cache
	}
	return s, nil
}

// Path returns the absolute path of the chunk file with the given index.
func (s *Store) Path(index uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf(chunkFileFormat, index))
}

// Size returns the current byte size of a chunk file, or 0 when the file
// does not exist yet.
func (s *Store) Size(index uint32) (int64, error) {
	info, err := os.Stat(s.Path(index))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// Truncate discards every byte beyond length. Used only during crash
// recovery, to trim bytes written after the last persisted metadata.
func (s *Store) Truncate(index uint32, length int64) error {
	return os.Truncate(s.Path(index), length)
}

// Remove deletes a fully drained chunk file.
func (s *Store) Remove(index uint32) error {
	return os.Remove(s.Path(index))
}

// NextIndex returns index+1 and guards against wrapping the uint32 index
// space. The 10-digit filename width covers all of uint32, so exhaustion
// of the index space is the only overflow condition.
func (s *Store) NextIndex(index uint32) (uint32, error) {
	if index == ^uint32(0) {
		return 0, ErrTooManyChunks
	}
	return index + 1, nil
}

// cacheGet / cacheAdd: 缓存可能未开启
func (s *Store) cacheGet(pos framePos) ([]byte, bool) {
	if s.readCache == nil {
		return nil, false
	}
	return s.readCache.Get(pos)
}

func (s *Store) cacheAdd(pos framePos, payload []byte) {
	if s.readCache == nil {
		return
	}
	s.readCache.Add(pos, payload)
}

// Close purges the read cache. Open appenders and readers are owned and
// closed by the caller.
func (s *Store) Close() {
	if s.readCache != nil {
		s.readCache.Purge()
	}
}

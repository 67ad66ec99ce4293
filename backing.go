package pqueue

import (
	"fmt"
	"io"

	"github.com/gofish2020/pqueue/chunkstore"
)

// diskBacking 把游标/元数据绑定到chunk文件上，是BlockingCore的持久化后端。
// 所有方法都由core持锁调用，这里不加锁。
type diskBacking struct {
	store     *chunkstore.Store
	metaStore *metadataStore
	meta      Metadata

	head *chunkstore.Appender
	tail *chunkstore.Reader

	// 读路径推迟了元数据落盘，等TaskDone时由Sync补上
	dirty bool
}

// openBacking loads the persisted metadata, runs the crash-recovery
// truncation, and opens the head chunk for appending and the tail chunk
// for reading at their persisted positions.
func openBacking(options Options) (*diskBacking, error) {
	store, err := chunkstore.NewStore(options.DirPath, options.CacheFrames)
	if err != nil {
		return nil, err
	}
	metaStore, err := newMetadataStore(options.DirPath, options.TempSubdir)
	if err != nil {
		return nil, err
	}

	// 已有队列以持久化的chunksize/压缩标记为准
	meta, err := metaStore.Load(Metadata{
		ChunkSize:   options.ChunkSize,
		Compression: options.Compression,
	})
	if err != nil {
		return nil, err
	}

	// 把上次元数据落盘之后写入的字节全部截掉（半截帧或未提交的完整记录），
	// 让可见内容和最后一次提交的状态完全一致
	headSize, err := store.Size(meta.Head.Index)
	if err != nil {
		return nil, err
	}
	if headSize > meta.Head.Offset {
		if err := store.Truncate(meta.Head.Index, meta.Head.Offset); err != nil {
			return nil, err
		}
	} else if headSize < meta.Head.Offset {
		// 已提交的字节反而缺了，截断恢复救不回来
		return nil, fmt.Errorf("head chunk %d has %d bytes, metadata expects %d: %w",
			meta.Head.Index, headSize, meta.Head.Offset, chunkstore.ErrCorrupted)
	}

	head, err := store.OpenAppender(meta.Head.Index)
	if err != nil {
		return nil, err
	}

	if tailSize, err := store.Size(meta.Tail.Index); err != nil {
		head.Close()
		return nil, err
	} else if tailSize < meta.Tail.Offset {
		head.Close()
		return nil, fmt.Errorf("tail chunk %d has %d bytes, metadata expects %d: %w",
			meta.Tail.Index, tailSize, meta.Tail.Offset, chunkstore.ErrCorrupted)
	}

	tail, err := store.OpenReader(meta.Tail.Index, meta.Tail.Offset)
	if err != nil {
		head.Close()
		return nil, err
	}

	return &diskBacking{
		store:     store,
		metaStore: metaStore,
		meta:      meta,
		head:      head,
		tail:      tail,
	}, nil
}

func (b *diskBacking) Len() int {
	return int(b.meta.Size)
}

// Push appends the record to the head chunk, advances the head cursor
// (rolling over to a new chunk file every ChunkSize records), and persists
// the metadata synchronously before returning.
func (b *diskBacking) Push(rec []byte) error {
	if err := b.head.Append(rec); err != nil {
		return err
	}

	meta := b.meta
	meta.Head.Count++
	meta.Head.Offset = b.head.Size()

	head := b.head
	if meta.Head.Count == meta.ChunkSize {
		next, err := b.store.NextIndex(meta.Head.Index)
		if err != nil {
			return b.rollbackPush(err)
		}
		if head, err = b.store.OpenAppender(next); err != nil {
			return b.rollbackPush(err)
		}
		meta.Head = chunkstore.Cursor{Index: next}
	}
	meta.Size++

	if err := b.metaStore.Save(&meta); err != nil {
		if head != b.head {
			head.Close()
		}
		return b.rollbackPush(err)
	}

	if head != b.head {
		b.head.Close()
		b.head = head
	}
	b.meta = meta
	return nil
}

// rollbackPush 把没能提交的记录从head文件尾部截掉，内存状态保持不变
func (b *diskBacking) rollbackPush(cause error) error {
	_ = b.head.Truncate(b.meta.Head.Offset)
	return cause
}

// Pop reads the record at the tail cursor and advances it, deleting the
// chunk file once it is fully drained. The metadata update is only marked
// dirty here; Sync persists it when the record is acknowledged.
func (b *diskBacking) Pop() ([]byte, error) {
	// core只在Len()>0时调用，这里的判断是正确性兜底
	if !b.meta.Tail.Less(b.meta.Head) {
		return nil, ErrEmpty
	}

	prevOffset := b.tail.Offset()
	rec, err := b.tail.Next()
	if err != nil {
		if err == io.EOF {
			// 元数据认定这里有一条完整记录
			return nil, chunkstore.ErrCorrupted
		}
		return nil, err
	}

	meta := b.meta
	meta.Tail.Count++
	meta.Tail.Offset = b.tail.Offset()

	if meta.Tail.Count == meta.ChunkSize && meta.Tail.Index <= meta.Head.Index {
		next, err := b.store.NextIndex(meta.Tail.Index)
		if err != nil {
			b.tail.Seek(prevOffset)
			return nil, err
		}
		reader, err := b.store.OpenReader(next, 0)
		if err != nil {
			b.tail.Seek(prevOffset)
			return nil, err
		}
		drained := meta.Tail.Index
		b.tail.Close()
		b.tail = reader
		// 删除失败不回滚：记录已经读出来了，残留文件只占磁盘，不影响正确性
		_ = b.store.Remove(drained)
		meta.Tail = chunkstore.Cursor{Index: next}
	}

	meta.Size--
	b.meta = meta
	b.dirty = true
	return rec, nil
}

// Peek returns the record at the tail cursor without advancing it.
func (b *diskBacking) Peek() ([]byte, error) {
	if !b.meta.Tail.Less(b.meta.Head) {
		return nil, ErrEmpty
	}
	rec, err := b.tail.Peek()
	if err != nil {
		if err == io.EOF {
			return nil, chunkstore.ErrCorrupted
		}
		return nil, err
	}
	return rec, nil
}

// Sync persists the metadata when the read path left it dirty.
func (b *diskBacking) Sync() error {
	if !b.dirty {
		return nil
	}
	if err := b.metaStore.Save(&b.meta); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

// close flushes a dirty metadata snapshot and releases both chunk handles.
func (b *diskBacking) close() error {
	err := b.Sync()
	if cerr := b.head.Close(); err == nil {
		err = cerr
	}
	if cerr := b.tail.Close(); err == nil {
		err = cerr
	}
	b.store.Close()
	return err
}

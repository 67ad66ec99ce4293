package chunkstore

import "os"

// Appender 向单个chunk文件追加记录帧，每次追加都刷盘
type Appender struct {
	store  *Store
	index  uint32
	fd     *os.File
	size   int64
	closed bool
}

// OpenAppender opens the chunk file with the given index for appending,
// creating it when absent. The returned appender starts at the current end
// of the file.
func (s *Store) OpenAppender(index uint32) (*Appender, error) {
	fd, err := os.OpenFile(s.Path(index), os.O_CREATE|os.O_WRONLY|os.O_APPEND, chunkFileModePerm)
	if err != nil {
		return nil, err
	}
	info, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, err
	}
	return &Appender{
		store: s,
		index: index,
		fd:    fd,
		size:  info.Size(),
	}, nil
}

// Append frames the payload, writes it, and syncs the file to stable
// storage before returning. This sync is the durability boundary the
// queue's metadata persistence depends on.
func (a *Appender) Append(payload []byte) error {
	if a.closed {
		return ErrClosed
	}

	buf := defaultBuffer.Get()
	hp := defaultHeader.Get()
	defer func() {
		defaultHeader.Put(hp)
		defaultBuffer.Put(buf)
	}()

	if err := appendFrame(buf, *hp, payload); err != nil {
		return err
	}

	if _, err := a.fd.Write(buf.Bytes()); err != nil {
		// 写失败，把可能的半截帧截掉，文件游标不前进
		_ = a.fd.Truncate(a.size)
		return err
	}
	if err := a.fd.Sync(); err != nil {
		return err
	}

	a.size += int64(buf.Len())
	return nil
}

// Truncate discards every byte beyond size, dropping frames that were
// appended but never committed by the caller.
func (a *Appender) Truncate(size int64) error {
	if a.closed {
		return ErrClosed
	}
	if err := a.fd.Truncate(size); err != nil {
		return err
	}
	a.size = size
	return nil
}

// Size returns the end offset of the chunk file, i.e. the byte offset the
// next append will start at.
func (a *Appender) Size() int64 {
	return a.size
}

// Index returns the chunk index this appender writes to.
func (a *Appender) Index() uint32 {
	return a.index
}

func (a *Appender) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.fd.Close()
}

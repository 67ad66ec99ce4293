package chunkstore

import "os"

// Reader 从单个chunk文件顺序读帧
type Reader struct {
	store  *Store
	index  uint32
	fd     *os.File
	offset int64
	closed bool
}

// OpenReader opens the chunk file with the given index for sequential
// reading, positioned at offset. Opening a missing chunk is an error; the
// queue only reads chunks its metadata says exist.
func (s *Store) OpenReader(index uint32, offset int64) (*Reader, error) {
	fd, err := os.Open(s.Path(index))
	if err != nil {
		return nil, err
	}
	return &Reader{
		store:  s,
		index:  index,
		fd:     fd,
		offset: offset,
	}, nil
}

// Next reads the frame at the current offset and advances past it.
// Returns io.EOF at a clean end of chunk.
func (r *Reader) Next() ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	payload, next, err := readFrameAt(r.fd, r.offset)
	if err != nil {
		return nil, err
	}
	r.offset = next
	return payload, nil
}

// Peek reads the frame at the current offset without advancing. Repeated
// peeks are served from the store's read cache; frames are append-only so
// a cached payload can never go stale.
func (r *Reader) Peek() ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	pos := framePos{index: r.index, offset: r.offset}
	if payload, ok := r.store.cacheGet(pos); ok {
		return payload, nil
	}
	payload, _, err := readFrameAt(r.fd, r.offset)
	if err != nil {
		return nil, err
	}
	r.store.cacheAdd(pos, payload)
	return payload, nil
}

// Seek repositions the reader. Used to rewind after a multi-step operation
// fails halfway.
func (r *Reader) Seek(offset int64) {
	r.offset = offset
}

// Offset returns the byte offset the next read will start at.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Index returns the chunk index this reader reads from.
func (r *Reader) Index() uint32 {
	return r.index
}

func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.fd.Close()
}

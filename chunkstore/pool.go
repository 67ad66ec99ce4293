package chunkstore

import (
	"bytes"
	"sync"
)

// 写 缓存
type bufferPool struct {
	buffer sync.Pool
}

var defaultBuffer = newBufferPool()

func newBufferPool() *bufferPool {
	return &bufferPool{
		buffer: sync.Pool{
			New: func() any {
				return new(bytes.Buffer)
			},
		},
	}
}

func (b *bufferPool) Get() *bytes.Buffer {
	return b.buffer.Get().(*bytes.Buffer)
}

func (b *bufferPool) Put(buf *bytes.Buffer) {
	buf.Reset()
	b.buffer.Put(buf)
}

// 读 缓存（帧头复用，避免内存重复分配）
var defaultHeader = newHeaderPool()

type headerPool struct {
	buffer sync.Pool
}

func newHeaderPool() *headerPool {
	return &headerPool{
		buffer: sync.Pool{
			New: func() any {
				h := make([]byte, frameHeaderSize)
				return &h
			},
		},
	}
}

func (b *headerPool) Get() *[]byte {
	return b.buffer.Get().(*[]byte)
}

func (b *headerPool) Put(h *[]byte) {
	b.buffer.Put(h)
}

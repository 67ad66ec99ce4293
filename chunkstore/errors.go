package chunkstore

import "errors"

var ErrClosed = errors.New("chunk file is closed")

var ErrInvalidCRC = errors.New("invalid crc, the data may be corrupted")

// ErrCorrupted 帧不完整：文件在元数据认定已提交的位置上缺字节
var ErrCorrupted = errors.New("incomplete frame, chunk file is shorter than expected")

var ErrTooManyChunks = errors.New("chunk index space exhausted")

package chunkstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"math"
	"os"
)

var ErrDataTooLarge = errors.New("record payload too large for a frame")

/*
帧格式（小端）
| -- checksum(4) -- | -- length(4) -- | -- payload(length) -- |
checksum 覆盖 length + payload
*/

// appendFrame 将一条记录按帧格式写入buf
func appendFrame(buf *bytes.Buffer, header []byte, payload []byte) error {
	if int64(len(payload)) > math.MaxUint32 {
		return ErrDataTooLarge
	}
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))

	sum := crc32.ChecksumIEEE(header[4:8])
	sum = crc32.Update(sum, crc32.IEEETable, payload)
	binary.LittleEndian.PutUint32(header[:4], sum)

	if _, err := buf.Write(header[:frameHeaderSize]); err != nil {
		return err
	}
	if _, err := buf.Write(payload); err != nil {
		return err
	}
	return nil
}

// readFrameAt reads one complete frame starting at offset.
//
// Returns io.EOF when offset is exactly the end of the file (a clean chunk
// boundary), ErrCorrupted when the file ends inside a frame, and
// ErrInvalidCRC when the checksum does not match.
func readFrameAt(fd *os.File, offset int64) (payload []byte, next int64, err error) {
	hp := defaultHeader.Get()
	defer defaultHeader.Put(hp)
	header := *hp

	n, err := fd.ReadAt(header[:frameHeaderSize], offset)
	if err != nil {
		if err == io.EOF {
			if n == 0 {
				return nil, offset, io.EOF
			}
			// 帧头残缺
			return nil, offset, ErrCorrupted
		}
		return nil, offset, err
	}

	length := binary.LittleEndian.Uint32(header[4:8])
	payload = make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(fd, offset+frameHeaderSize, int64(length)), payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// payload残缺
			return nil, offset, ErrCorrupted
		}
		return nil, offset, err
	}

	sum := crc32.ChecksumIEEE(header[4:8])
	sum = crc32.Update(sum, crc32.IEEETable, payload)
	if sum != binary.LittleEndian.Uint32(header[:4]) {
		return nil, offset, ErrInvalidCRC
	}

	return payload, offset + frameHeaderSize + int64(length), nil
}

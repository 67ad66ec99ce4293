package chunkstore

// Cursor 定位chunk序列中的一个位置
type Cursor struct {
	// chunk文件编号
	Index uint32
	// 该文件内已经过的记录数
	Count uint32
	// 该文件内的字节偏移
	Offset int64
}

// Less reports whether c is strictly before other under the lexicographic
// order on (Index, Count).
func (c Cursor) Less(other Cursor) bool {
	if c.Index != other.Index {
		return c.Index < other.Index
	}
	return c.Count < other.Count
}

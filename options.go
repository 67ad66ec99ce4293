package pqueue

import (
	"encoding/json"
	"errors"
)

// Options 队列配置
type Options struct {
	// 持久化目录，不存在会创建
	DirPath string

	// MaxSize <= 0 表示无容量上限；> 0 时队列满则Put阻塞/报ErrFull
	MaxSize int

	// 每个chunk文件保存的记录条数
	ChunkSize uint32

	// 元数据替换的临时文件放到 DirPath/_temp 子目录中（保证与目标同一文件系统，
	// rename才是原子的）；false 时直接放在 DirPath 下
	TempSubdir bool

	// 记录payload用s2(snappy)压缩后再落盘。已有队列以元数据中持久化的值为准
	Compression bool

	// 读缓存的帧条数，<= 0 关闭缓存（只影响Peek的重复读）
	CacheFrames int

	// 记录编解码，默认JSON
	Encode func(v any) ([]byte, error)
	Decode func(data []byte, v any) error
}

var DefaultOptions = Options{
	DirPath:     "/tmp/pqueue",
	MaxSize:     0,
	ChunkSize:   100,
	TempSubdir:  false,
	Compression: false,
	CacheFrames: 16,
}

func checkOptions(options *Options) error {
	if options.DirPath == "" {
		return errors.New("DirPath must not be empty")
	}
	if options.ChunkSize == 0 {
		return errors.New("ChunkSize must be greater than 0")
	}
	if options.Encode == nil {
		options.Encode = json.Marshal
	}
	if options.Decode == nil {
		options.Decode = json.Unmarshal
	}
	return nil
}

package chunkstore

const (
	// 文件名格式：q + 10位十进制编号（uint32全范围都能表示，不会超宽）
	chunkFilePrefix = "q"
	chunkFileFormat = chunkFilePrefix + "%010d"

	// chunk file的权限
	chunkFileModePerm = 0644
)

const (
	// 帧头大小 4(checksum) + 4(payload长度)
	frameHeaderSize = 8
)

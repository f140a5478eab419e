package artifact

import (
	"context"
	"io"
	"time"
)

// Artifact 描述一份已经落盘的音频产物。
// 产物一旦写入就不可修改，URI 由具体驱动决定含义
// (文件系统驱动为绝对路径，对象存储驱动为 bucket/object)。
type Artifact struct {
	ID        string    `json:"id"`
	URI       string    `json:"uri"`
	MIMEType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store 是产物存储的抽象。Save 为追加写入，永远生成新的唯一 ID;
// Open 按 ID 取回内容,未知 ID 返回 NOT_FOUND。
type Store interface {
	Save(ctx context.Context, data []byte, mimeType string) (Artifact, error)
	Open(ctx context.Context, id string) (io.ReadCloser, Artifact, error)
}

// extensionFor 把 MIME 类型映射为文件扩展名,用于生成对人类友好的对象名。
func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/flac":
		return ".flac"
	default:
		return ".bin"
	}
}

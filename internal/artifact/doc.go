// Package artifact 负责语音产物的持久化。
// 产物是追加写入、一次写成的:保存返回全新的唯一 ID,
// 内容落盘后不再变化。提供文件系统和 MinIO 两种驱动。
package artifact

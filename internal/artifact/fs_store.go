package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/pkg/logger"
)

// FSStore 把产物保存在本地目录中。
// 写入流程是先写同目录下的临时文件再原子重命名,
// 读者永远不会看到写到一半的文件。
type FSStore struct {
	dir string

	mu    sync.RWMutex
	index map[string]Artifact
}

// NewFSStore 创建基于文件系统的产物存储,目录不存在时自动创建。
func NewFSStore(dir string) (*FSStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "产物目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建产物目录失败")
	}
	return &FSStore{
		dir:   dir,
		index: make(map[string]Artifact),
	}, nil
}

// Save 将数据写入新文件并返回产物描述。每次调用生成新的唯一 ID。
func (s *FSStore) Save(ctx context.Context, data []byte, mimeType string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存产物前上下文已取消")
	}
	if len(data) == 0 {
		return Artifact{}, xerrors.New(xerrors.CodeInvalidArgument, "产物内容不能为空")
	}

	id := uuid.NewString()
	name := id + extensionFor(mimeType)
	finalPath := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, "."+id+".tmp-*")
	if err != nil {
		return Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建临时文件失败")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入产物数据失败")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "关闭临时文件失败")
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "落盘产物失败")
	}

	art := Artifact{
		ID:        id,
		URI:       finalPath,
		MIMEType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.index[id] = art
	s.mu.Unlock()

	logger.Named("artifact").Debug("产物已保存",
		"artifact_id", id,
		"size", art.Size,
		"mime_type", mimeType,
	)
	return art, nil
}

// Open 按 ID 打开产物内容。进程重启后索引为空,
// 此时回退到目录扫描,文件名前缀即产物 ID。
func (s *FSStore) Open(ctx context.Context, id string) (io.ReadCloser, Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取产物前上下文已取消")
	}
	if !validID(id) {
		return nil, Artifact{}, xerrors.New(xerrors.CodeNotFound, "产物不存在: "+id)
	}

	s.mu.RLock()
	art, ok := s.index[id]
	s.mu.RUnlock()

	if !ok {
		recovered, err := s.recover(id)
		if err != nil {
			return nil, Artifact{}, err
		}
		art = recovered
		s.mu.Lock()
		s.index[id] = art
		s.mu.Unlock()
	}

	file, err := os.Open(art.URI)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Artifact{}, xerrors.New(xerrors.CodeNotFound, "产物不存在: "+id)
		}
		return nil, Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开产物失败")
	}
	return file, art, nil
}

// recover 在索引缺失时按文件名前缀从目录中找回产物。
func (s *FSStore) recover(id string) (Artifact, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, id+".*"))
	if err != nil || len(matches) == 0 {
		return Artifact{}, xerrors.New(xerrors.CodeNotFound, "产物不存在: "+id)
	}
	path := matches[0]

	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, xerrors.New(xerrors.CodeNotFound, "产物不存在: "+id)
	}

	mime := "application/octet-stream"
	if detected, err := mimetype.DetectFile(path); err == nil {
		mime = strings.Split(detected.String(), ";")[0]
	}

	return Artifact{
		ID:        id,
		URI:       path,
		MIMEType:  mime,
		Size:      info.Size(),
		CreatedAt: info.ModTime().UTC(),
	}, nil
}

// validID 拒绝含路径分隔符的 ID,防止目录穿越。
func validID(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, "/\\.")
}

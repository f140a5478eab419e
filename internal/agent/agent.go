package agent

import (
	"strings"

	xerrors "VoiceMCP-Chain/internal/errors"
)

// Agent 描述一个可被调用的智能体配置：提示词加模型选择，本身无状态。
type Agent struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
	Model        string   `json:"model" yaml:"model"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt"`
}

// Summary 是对外展示时的精简视图，不包含系统提示词。
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Model       string `json:"model"`
}

// Summary 返回智能体的精简视图。
func (a Agent) Summary() Summary {
	return Summary{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Model:       a.Model,
	}
}

// Registry 是启动时构建的只读智能体目录。构建完成后不再修改，
// 因此任意数量的并发读取都无需加锁。
type Registry struct {
	ordered []Agent
	byID    map[string]Agent
}

// NewRegistry 根据给定目录构建 Registry，保持插入顺序。
func NewRegistry(agents []Agent) (*Registry, error) {
	if len(agents) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "智能体目录不能为空")
	}
	reg := &Registry{
		ordered: make([]Agent, 0, len(agents)),
		byID:    make(map[string]Agent, len(agents)),
	}
	for _, ag := range agents {
		id := strings.TrimSpace(ag.ID)
		if id == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "智能体缺少 id")
		}
		if _, exists := reg.byID[id]; exists {
			return nil, xerrors.New(xerrors.CodeConflict, "智能体 id 重复: "+id)
		}
		if strings.TrimSpace(ag.Model) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "智能体 "+id+" 缺少 model")
		}
		ag.ID = id
		reg.ordered = append(reg.ordered, ag)
		reg.byID[id] = ag
	}
	return reg, nil
}

// List 返回全部智能体，顺序与目录定义一致。返回的是副本，调用方可自由修改。
func (r *Registry) List() []Agent {
	out := make([]Agent, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Find 按 id 查找智能体。
func (r *Registry) Find(id string) (Agent, bool) {
	ag, ok := r.byID[strings.TrimSpace(id)]
	return ag, ok
}

// Len 返回目录中的智能体数量。
func (r *Registry) Len() int {
	return len(r.ordered)
}

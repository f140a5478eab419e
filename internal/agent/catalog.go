package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogFile 对应智能体目录 YAML 文件的结构。
type catalogFile struct {
	Agents []Agent `yaml:"agents"`
}

// LoadCatalog 从 YAML 文件加载智能体目录。新增智能体只需要修改数据文件，
// 不需要改代码。
func LoadCatalog(path string) ([]Agent, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("智能体目录路径不能为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取智能体目录失败: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("解析智能体目录失败: %w", err)
	}
	if len(file.Agents) == 0 {
		return nil, fmt.Errorf("智能体目录 %s 中没有任何条目", path)
	}
	return file.Agents, nil
}

// DefaultCatalog 返回内置的智能体目录。当未配置外部目录文件时使用。
func DefaultCatalog() []Agent {
	return []Agent{
		{
			ID:           "agent_001",
			Name:         "General Assistant",
			Description:  "A helpful general-purpose AI assistant",
			Capabilities: []string{"text", "conversation", "reasoning"},
			Model:        "gemini-2.0-flash-exp",
			SystemPrompt: "You are a helpful, friendly, and knowledgeable AI assistant. Provide clear, accurate, and concise responses.",
		},
		{
			ID:           "agent_002",
			Name:         "Web3 Expert",
			Description:  "Specialized in blockchain, Web3, and cryptocurrency technologies",
			Capabilities: []string{"web3", "crypto", "blockchain", "nft"},
			Model:        "gemini-2.0-flash-exp",
			SystemPrompt: "You are a Web3 and blockchain expert. Help users understand cryptocurrency, NFTs, smart contracts, DeFi, and related technologies. Provide accurate technical information and practical guidance.",
		},
		{
			ID:           "agent_003",
			Name:         "Voice Specialist",
			Description:  "Optimized for natural voice conversations and audio interactions",
			Capabilities: []string{"voice", "audio", "conversation"},
			Model:        "gemini-2.0-flash-exp",
			SystemPrompt: "You are an AI assistant optimized for voice interactions. Respond in a natural, conversational tone suitable for speech. Keep responses concise and easy to understand when spoken aloud.",
		},
		{
			ID:           "agent_004",
			Name:         "Code Assistant",
			Description:  "Expert in programming, software development, and technical problem-solving",
			Capabilities: []string{"coding", "debugging", "technical"},
			Model:        "gemini-2.0-flash-exp",
			SystemPrompt: "You are an expert programming assistant. Help users with code, debugging, architecture, and technical decisions. Provide clear explanations and working code examples.",
		},
	}
}

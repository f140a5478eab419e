// Package agent 维护只读的智能体目录。目录在进程启动时从内置列表或
// YAML 文件加载一次，之后不再变化，所有读取都无需同步。
package agent

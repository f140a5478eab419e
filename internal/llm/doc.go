// Package llm 定义补全 Provider 的统一调用接口。
// 子包提供具体实现：gemini 走 Google 官方 SDK，groq 走 OpenAI 兼容协议。
package llm

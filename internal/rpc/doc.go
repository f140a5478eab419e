// Package rpc 实现内部过程调用协议：JSON-RPC 2.0 信封经由单一 HTTP POST
// 端点传输。Dispatcher 负责校验与路由，Server 承载 HTTP 端点，Client 供
// 网关调用。协议层错误码（-326xx）与应用层错误码（-320xx）严格区分。
package rpc

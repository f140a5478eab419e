// Package gateway 是面向外部调用方的 REST 入口。
// 它把文本或音频请求编排成一条流水线:转写、派发补全、
// 语音合成与产物落盘,并把内部错误码翻译成 HTTP 状态。
package gateway

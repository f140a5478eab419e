// Package speech 是语音桥接层：入站把音频转写为文本，出站把文本合成为
// 音频。两个方向相互独立，各自只有一次外部调用，不做任何重试。
package speech

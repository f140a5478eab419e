package speech

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	xerrors "VoiceMCP-Chain/internal/errors"
)

// Transcriber 将音频字节转为文本。单次调用，不重试；
// 转写失败会中止整个请求，由调用方决定。
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer 将文本转为音频字节，并返回音频的 MIME 类型。
// 合成失败时调用方可以降级为纯文本响应。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio []byte, mimeType string, err error)
}

// Bridge 同时具备两个方向的语音能力。
type Bridge interface {
	Transcriber
	Synthesizer
}

// supportedContainers 列出允许送往转写 Provider 的音频容器。
// key 是嗅探得到的 MIME 类型，value 是上传时使用的文件扩展名。
var supportedContainers = map[string]string{
	"audio/wav":   "wav",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/ogg":   "ogg",
	"audio/flac":  "flac",
	"audio/aiff":  "aiff",
	"audio/x-m4a": "m4a",
	"audio/mp4":   "m4a",
	"video/webm":  "webm",
	"audio/webm":  "webm",
}

// DetectFormat 嗅探音频负载的容器格式。不支持的格式在任何网络调用之前
// 就以 SPEECH_UNSUPPORTED_FORMAT 失败。
func DetectFormat(audio []byte) (mimeType, extension string, err error) {
	if len(audio) == 0 {
		return "", "", xerrors.New(xerrors.CodeSpeechFormat, "音频负载为空")
	}
	detected := mimetype.Detect(audio)
	mime := strings.Split(detected.String(), ";")[0]
	ext, ok := supportedContainers[mime]
	if !ok {
		return "", "", xerrors.New(xerrors.CodeSpeechFormat,
			"不支持的音频格式: "+mime,
			xerrors.WithMetadata("detected_mime", mime))
	}
	return mime, ext, nil
}

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	xerrors "VoiceMCP-Chain/internal/errors"
)

func wavSample() []byte {
	return []byte("RIFF\x24\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00")
}

func TestTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("unexpected model: %s", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "input.wav" {
			t.Errorf("unexpected filename: %s", header.Filename)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  mint a token for me  "})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	text, err := client.Transcribe(context.Background(), wavSample())
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "mint a token for me" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestTranscribeUnsupportedFormatSkipsNetwork(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Transcribe(context.Background(), []byte("\x89PNG\r\n\x1a\n0000000000"))
	if err == nil {
		t.Fatal("expected format error")
	}
	if got := xerrors.CodeOf(err); got != xerrors.CodeSpeechFormat {
		t.Fatalf("unexpected code: %s", got)
	}
	if hits.Load() != 0 {
		t.Fatalf("provider was called %d times for a rejected payload", hits.Load())
	}
}

func TestTranscribeProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Transcribe(context.Background(), wavSample())
	if err == nil {
		t.Fatal("expected provider error")
	}
	if got := xerrors.CodeOf(err); got != xerrors.CodeSpeechProvider {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestSynthesizeSuccess(t *testing.T) {
	mp3 := []byte("ID3\x03\x00\x00\x00\x00\x00\x00fake-audio")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["model"] != "tts-1" || payload["voice"] != "alloy" {
			t.Errorf("unexpected payload: %v", payload)
		}
		if payload["input"] != "你的代币已经铸造完成" {
			t.Errorf("unexpected input: %s", payload["input"])
		}
		w.Write(mp3)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	audio, mime, err := client.Synthesize(context.Background(), "你的代币已经铸造完成")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if mime != "audio/mpeg" {
		t.Fatalf("unexpected mime: %s", mime)
	}
	if string(audio) != string(mp3) {
		t.Fatal("audio bytes do not round-trip")
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, _, err = client.Synthesize(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected error for empty text")
	}
	if got := xerrors.CodeOf(err); got != xerrors.CodeInvalidArgument {
		t.Fatalf("unexpected code: %s", got)
	}
}

func TestNewClientMissingKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

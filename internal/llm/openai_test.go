package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/rollcall/internal/model"
)

const extractedJSON = `{"claims": [
  {"text": "Neeve and Sean were brilliant in defence", "topic": "performance",
   "entity_mentions": [
     {"mention_type": "player_name", "raw_text": "Sean", "position": 10},
     {"mention_type": "player_name", "raw_text": "Neeve", "position": 0},
     {"mention_type": "parent_name", "raw_text": "Mary", "position": 30}
   ]},
  {"text": "  ", "topic": "other", "entity_mentions": []},
  {"text": "The U12s need more fitness work", "topic": "development",
   "entity_mentions": [{"mention_type": "team_name", "raw_text": "the U12s", "position": 0}]}
]}`

func newTestService(t *testing.T, handler http.HandlerFunc) *OpenAIService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewOpenAIService(Config{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		Model:           "gpt-4o-mini",
		TranscribeModel: "whisper-1",
		Timeout:         5,
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	return svc
}

func TestOpenAIService_ExtractClaims(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Error("Expected JSON response format")
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "Neeve and Sean") {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: extractedJSON},
				FinishReason: "stop",
			}},
		})
	})

	claims, err := svc.ExtractClaims(context.Background(), model.Artifact{ID: "a1", Transcript: "Neeve and Sean were brilliant in defence"})
	if err != nil {
		t.Fatalf("ExtractClaims failed: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("Expected 2 claims, got %d", len(claims))
	}

	first := claims[0]
	if first.Status != model.ClaimStatusExtracted {
		t.Errorf("Expected extracted status, got %s", first.Status)
	}
	if len(first.EntityMentions) != 2 {
		t.Fatalf("Expected unknown mention type dropped, got %+v", first.EntityMentions)
	}
	if first.EntityMentions[0].RawText != "Neeve" || first.EntityMentions[1].RawText != "Sean" {
		t.Errorf("Expected mentions ordered by position, got %+v", first.EntityMentions)
	}
	if claims[1].EntityMentions[0].MentionType != model.MentionTeamName {
		t.Errorf("Expected team mention, got %s", claims[1].EntityMentions[0].MentionType)
	}
}

func TestOpenAIService_ExtractClaims_Errors(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error": {"message": "overloaded", "type": "server_error"}}`)
	})

	if _, err := svc.ExtractClaims(context.Background(), model.Artifact{ID: "a1"}); err == nil {
		t.Error("Expected error for empty transcript")
	}
	if _, err := svc.ExtractClaims(context.Background(), model.Artifact{ID: "a1", Transcript: "hello"}); err == nil {
		t.Error("Expected error for 503")
	}
}

func TestOpenAIService_ExtractClaims_NoChoices(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{})
	})

	_, err := svc.ExtractClaims(context.Background(), model.Artifact{ID: "a1", Transcript: "hello"})
	if err != ErrEmptyResponse {
		t.Errorf("Expected ErrEmptyResponse, got %v", err)
	}
}

func TestOpenAIService_Transcribe(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("Expected path /audio/transcriptions, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("Expected whisper-1, got %s", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer func() { _ = file.Close() }()
		if header.Filename != "note.ogg" {
			t.Errorf("Expected note.ogg, got %s", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "OggS-audio" {
			t.Errorf("Unexpected audio payload %q", data)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  Neeve had a great game  "})
	})

	path := filepath.Join(t.TempDir(), "note.ogg")
	if err := os.WriteFile(path, []byte("OggS-audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	text, err := svc.Transcribe(context.Background(), model.Artifact{ID: "a1", MediaRef: path})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Neeve had a great game" {
		t.Errorf("Unexpected transcript %q", text)
	}

	if _, err := svc.Transcribe(context.Background(), model.Artifact{ID: "a2"}); !errors.Is(err, model.ErrBadInput) {
		t.Errorf("Expected ErrBadInput for artifact without media, got %v", err)
	}
	_, err = svc.Transcribe(context.Background(), model.Artifact{ID: "a3", MediaRef: "/nonexistent/note.ogg"})
	if !errors.Is(err, model.ErrBadInput) {
		t.Errorf("Expected ErrBadInput for missing media, got %v", err)
	}
}

func TestOpenAIService_Transcribe_ServiceErrorIsNotBadInput(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom"}}`))
	})

	path := filepath.Join(t.TempDir(), "note.ogg")
	if err := os.WriteFile(path, []byte("OggS-audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Transcribe(context.Background(), model.Artifact{ID: "a1", MediaRef: path})
	if err == nil {
		t.Fatal("Expected error from failing service")
	}
	if errors.Is(err, model.ErrBadInput) {
		t.Errorf("Service failure must not be ErrBadInput: %v", err)
	}
}

func TestNewOpenAIService_NoKey(t *testing.T) {
	if _, err := NewOpenAIService(Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}

func TestNewOpenAIService_TranscriptionRateAndMediaCache(t *testing.T) {
	svc, err := NewOpenAIService(Config{
		APIKey:                      "k",
		RequestsPerSecond:           100,
		Burst:                       1,
		TranscribeRequestsPerSecond: 0.001,
		MediaCacheDir:               filepath.Join(t.TempDir(), "media"),
		MediaCacheTTL:               time.Hour,
	})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	if !svc.limiter.Allow(OpTranscription) {
		t.Error("first transcription should pass")
	}
	if svc.limiter.Allow(OpTranscription) {
		t.Error("transcription override should throttle the second call")
	}
	if !svc.limiter.Allow(OpClaimsExtraction) {
		t.Error("claims extraction keeps the default rate")
	}
	if svc.media.cache == nil || svc.media.cacheTTL != time.Hour {
		t.Errorf("Expected media cache to be configured, got %v %v", svc.media.cache, svc.media.cacheTTL)
	}

	plain, err := NewOpenAIService(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	if plain.media.cache != nil {
		t.Error("Expected no media cache without a directory")
	}
}

func TestNewService(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil || svc != nil {
		t.Errorf("Expected disabled service, got %v, %v", svc, err)
	}

	if _, err := NewService(Config{Provider: "ollama"}); err == nil {
		t.Error("Expected error for unknown provider")
	}

	svc, err = NewService(Config{Provider: "OpenAI", APIKey: "k"})
	if err != nil || svc == nil {
		t.Fatalf("Expected openai service, got %v", err)
	}
	if svc.Model() != openai.GPT4oMini {
		t.Errorf("Expected default model, got %s", svc.Model())
	}
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(model.AIConfig{Provider: "openai", APIKey: "k", Burst: 9, NoProxy: "localhost"})
	if cfg.Model != "gpt-4o-mini" || cfg.TranscribeModel != "whisper-1" {
		t.Errorf("Expected model defaults, got %+v", cfg)
	}
	if cfg.Burst != 9 || cfg.Timeout != 60 || cfg.NoProxy != "localhost" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.MediaCacheTTL != 24*time.Hour || cfg.MediaCacheDir != "" {
		t.Errorf("Unexpected media cache defaults %+v", cfg)
	}
}

func TestParseClaims(t *testing.T) {
	claims, err := ParseClaims("```json\n{\"claims\": []}\n```")
	if err != nil {
		t.Fatalf("ParseClaims failed: %v", err)
	}
	if len(claims) != 0 {
		t.Errorf("Expected no claims, got %d", len(claims))
	}

	if _, err := ParseClaims("not json"); err == nil {
		t.Error("Expected decode error")
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/rollcall/internal/cache"
	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/util"
	"github.com/ppiankov/rollcall/internal/worker"
)

// Limiter keys for the two upstream operations
const (
	OpTranscription    = "transcription"
	OpClaimsExtraction = "claims_extraction"
)

// ErrEmptyResponse is returned when the model answers with no choices
var ErrEmptyResponse = errors.New("no response from OpenAI")

// OpenAIService transcribes voice notes with Whisper and extracts claims with
// a chat model in JSON mode
type OpenAIService struct {
	client  *openai.Client
	config  Config
	limiter *worker.Limiter
	media   *MediaFetcher
}

// NewOpenAIService creates an OpenAI-backed service
func NewOpenAIService(config Config) (*OpenAIService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: util.NewTransport(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = httpClient

	maxBytes := config.MaxMediaBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMediaBytes
	}

	limiter := worker.NewLimiter(config.RequestsPerSecond, config.Burst)
	if config.TranscribeRequestsPerSecond > 0 {
		limiter.SetRate(OpTranscription, config.TranscribeRequestsPerSecond, config.Burst)
	}

	media := NewMediaFetcher(httpClient, maxBytes)
	if config.MediaCacheDir != "" {
		media.SetCache(cache.NewLayeredCache(10*time.Minute, config.MediaCacheDir, config.MediaCacheTTL), config.MediaCacheTTL)
	}

	return &OpenAIService{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		limiter: limiter,
		media:   media,
	}, nil
}

// Model returns the chat model name
func (s *OpenAIService) Model() string {
	if s.config.Model == "" {
		return openai.GPT4oMini
	}
	return s.config.Model
}

// IsAvailable checks the API key and endpoint with a lightweight call
func (s *OpenAIService) IsAvailable(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("OpenAI API check failed: %w", err)
	}
	return nil
}

// Transcribe fetches the artifact's voice note and returns its transcript
func (s *OpenAIService) Transcribe(ctx context.Context, a model.Artifact) (string, error) {
	if a.MediaRef == "" {
		return "", fmt.Errorf("%w: artifact %s has no media", model.ErrBadInput, a.ID)
	}
	media, err := s.media.Fetch(ctx, a.MediaRef)
	if err != nil {
		if isBadMediaError(err) {
			return "", fmt.Errorf("fetch media: %w: %w", model.ErrBadInput, err)
		}
		return "", fmt.Errorf("fetch media: %w", err)
	}

	if err := s.limiter.Wait(ctx, OpTranscription); err != nil {
		return "", err
	}

	transcribeModel := s.config.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = openai.Whisper1
	}
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    transcribeModel,
		FilePath: media.Name,
		Reader:   media.Reader(),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI transcription error: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// ExtractClaims asks the chat model for the claims in the artifact's transcript
func (s *OpenAIService) ExtractClaims(ctx context.Context, a model.Artifact) ([]model.Claim, error) {
	if strings.TrimSpace(a.Transcript) == "" {
		return nil, fmt.Errorf("%w: artifact %s has no transcript", model.ErrBadInput, a.ID)
	}
	if err := s.limiter.Wait(ctx, OpClaimsExtraction); err != nil {
		return nil, err
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.Model(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: claimsSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildClaimsPrompt(a.Transcript)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return ParseClaims(resp.Choices[0].Message.Content)
}

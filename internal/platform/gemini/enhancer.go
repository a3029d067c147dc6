package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/phrazzld/lumiere-api/internal/config"
	"github.com/phrazzld/lumiere-api/internal/generation"
	"github.com/phrazzld/lumiere-api/internal/redact"
)

const translatorTemperature float32 = 0.3

// Breaker settings: after breakerFailures consecutive failed calls the
// enhancer stops calling Gemini for breakerCooldown and passes prompts
// through unchanged.
const (
	breakerFailures = 5
	breakerCooldown = 30 * time.Second
)

// contentGenerator is the subset of the genai client used here.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Enhancer implements generation.RequestPreparer.
type Enhancer struct {
	models  contentGenerator
	config  config.EnhancerConfig
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ generation.RequestPreparer = (*Enhancer)(nil)

// NewEnhancer creates an Enhancer backed by the Gemini API.
func NewEnhancer(ctx context.Context, cfg config.EnhancerConfig, logger *slog.Logger) (*Enhancer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newEnhancer(client.Models, cfg, logger), nil
}

func newEnhancer(models contentGenerator, cfg config.EnhancerConfig, logger *slog.Logger) *Enhancer {
	logger = logger.With("component", "prompt_enhancer")
	return &Enhancer{
		models:  models,
		config:  cfg,
		breaker: newBreaker(logger),
		logger:  logger,
	}
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gemini",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about Gemini's health.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
}

// Prepare returns req with an enhanced prompt. It never fails: on any error
// the prompt from the last successful step is kept.
func (e *Enhancer) Prepare(ctx context.Context, req generation.Request) generation.Request {
	original := req.Prompt
	if strings.TrimSpace(original) == "" {
		return req
	}

	prompt := original
	if e.config.TranslatorModel != "" {
		translated, err := e.ask(ctx, e.config.TranslatorModel, e.config.TranslatorSystemPrompt,
			translatorTemperature, "translation", prompt)
		if err != nil {
			e.logger.WarnContext(ctx, "translation failed, using original text", "error", redact.Error(err))
		} else {
			e.logger.InfoContext(ctx, "prompt translated", "from", prompt, "to", translated)
			prompt = translated
		}
	}

	enhanced, err := e.ask(ctx, e.config.Model, e.config.SystemPrompt,
		e.config.Temperature, "prompt", prompt)
	if err != nil {
		e.logger.ErrorContext(ctx, "prompt enhancement failed, using original prompt", "error", redact.Error(err))
		req.Prompt = original
		return req
	}

	e.logger.InfoContext(ctx, "prompt enhanced", "original", original, "enhanced", enhanced)
	req.Prompt = enhanced
	return req
}

// ask sends text to model and returns the string stored under field in the
// JSON object the model replies with.
func (e *Enhancer) ask(
	ctx context.Context,
	model string,
	systemPrompt string,
	temperature float32,
	field string,
	text string,
) (string, error) {
	if text == "" {
		return "", ErrEmptyPrompt
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type:     genai.TypeObject,
			Required: []string{field},
			Properties: map[string]*genai.Schema{
				field: {Type: genai.TypeString},
			},
		},
	}
	if systemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: text}},
	}}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.models.GenerateContent(ctx, model, contents, cfg)
	})
	if err != nil {
		return "", fmt.Errorf("gemini call to %s failed: %w", model, err)
	}
	resp, _ := result.(*genai.GenerateContentResponse)

	raw, err := responseText(resp)
	if err != nil {
		return "", err
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	value, _ := parsed[field].(string)
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingField, field)
	}
	return value, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if candidate.Content == nil {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Package gemini implements the natural-language command interpreter on
// Google's Gemini API. Free text goes in; a structured task command (or a
// clarification request) comes out as JSON, parsed into the closed command
// type consumed by the dispatcher.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/phrazzld/taskflow-api/internal/service/command"
)

// Config holds the Gemini interpreter settings.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string

	// Model is the Gemini model name, e.g. "gemini-2.0-flash".
	Model string

	// MaxRetries bounds retry attempts for transient API failures.
	MaxRetries int

	// RetryDelaySeconds is the base delay for exponential backoff.
	RetryDelaySeconds int
}

// Interpreter maps free-form user text to task commands via Gemini.
type Interpreter struct {
	client *genai.Client
	cfg    Config
	logger *slog.Logger
}

var _ command.Interpreter = (*Interpreter)(nil)

// NewInterpreter creates an Interpreter and its underlying API client.
func NewInterpreter(ctx context.Context, cfg Config, logger *slog.Logger) (*Interpreter, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("model name cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Interpreter{
		client: client,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "gemini_interpreter")),
	}, nil
}

// Interpret sends the user's text to the model and parses the structured
// command it returns. Transient API failures are retried with exponential
// backoff; unparseable or safety-blocked responses are permanent errors.
func (i *Interpreter) Interpret(ctx context.Context, ownerID, text string) (command.Command, *command.Clarification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, ErrEmptyText
	}

	raw, err := i.callWithRetry(ctx, buildPrompt(text))
	if err != nil {
		return nil, nil, err
	}

	cmd, clarification, err := parseCommand(raw)
	if err != nil {
		i.logger.WarnContext(ctx, "unparseable model output",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()))
		return nil, nil, err
	}
	return cmd, clarification, nil
}

func (i *Interpreter) callWithRetry(ctx context.Context, prompt string) (string, error) {
	maxRetries := i.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	baseDelaySeconds := i.cfg.RetryDelaySeconds
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; ; attempt++ {
		text, err := i.generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, ErrContentBlocked) || errors.Is(err, ErrInvalidResponse) {
			return "", err
		}
		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded %d retry attempts: %v",
				ErrTransientFailure, maxRetries, err)
		}

		// Exponential backoff with jitter in [0.5, 1.0).
		backoff := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5) * float64(time.Second))
		i.logger.InfoContext(ctx, "retrying gemini call",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (i *Interpreter) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := i.client.Models.GenerateContent(ctx, i.cfg.Model, genai.Text(prompt), nil)
	if err != nil {
		// API-level failures are assumed transient; the retry loop bounds
		// them.
		return "", fmt.Errorf("gemini API call: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text parts in response", ErrInvalidResponse)
	}
	return sb.String(), nil
}

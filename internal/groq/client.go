// Package groq talks to Groq's OpenAI-compatible API to transcribe dictated
// orders and to structure them into order lines.
package groq

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/morita/pos/internal/domain/voice"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	// TranscriptionModel and ChatModel name the Groq models to call.
	TranscriptionModel string
	ChatModel          string
	Language           string
	Temperature        float32
	StoreName          string
	// Timeout bounds each HTTP call. Zero means no client-side timeout.
	Timeout time.Duration

	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
}

func (o *Options) setDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.TranscriptionModel == "" {
		o.TranscriptionModel = "whisper-large-v3"
	}
	if o.ChatModel == "" {
		o.ChatModel = "llama-3.3-70b-versatile"
	}
	if o.Language == "" {
		o.Language = "es"
	}
	if o.StoreName == "" {
		o.StoreName = "Morita"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
}

var (
	_ voice.Transcriber = (*Client)(nil)
	_ voice.Extractor   = (*Client)(nil)
)

// Client implements voice.Transcriber and voice.Extractor. Calls are made
// once; there are no retries.
type Client struct {
	api    *openai.Client
	opts   Options
	tracer trace.Tracer
}

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("groq api key is required")
	}
	opts.setDefaults()

	httpClient := &http.Client{
		Timeout: opts.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(opts.TracerProvider),
		),
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	cfg.HTTPClient = httpClient

	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		opts:   opts,
		tracer: opts.TracerProvider.Tracer("github.com/morita/pos/internal/groq"),
	}, nil
}

// Transcribe sends the whole clip for speech-to-text and returns the plain
// transcript.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (_ string, rerr error) {
	if len(audio) == 0 {
		return "", voice.ErrEmptyAudio
	}

	ctx, span := c.tracer.Start(ctx, "groq.Transcribe",
		trace.WithAttributes(
			attribute.String("groq.model", c.opts.TranscriptionModel),
			attribute.Int("groq.audio_bytes", len(audio)),
		),
	)
	defer func() { endSpan(span, rerr) }()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.opts.TranscriptionModel,
		Reader:   bytes.NewReader(audio),
		FilePath: "pedido.wav",
		Language: c.opts.Language,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", errors.Wrap(err, "transcription")
	}

	text := strings.TrimSpace(resp.Text)
	c.opts.Logger.Debug("Transcribed order", zap.Int("chars", len(text)))
	return text, nil
}

// Extract asks the chat model to rewrite transcript as order lines, one
// "PRODUCTO | CANTIDAD | SUBTOTAL" per line, priced from inventory.
func (c *Client) Extract(ctx context.Context, transcript, inventory string) (_ string, rerr error) {
	ctx, span := c.tracer.Start(ctx, "groq.Extract",
		trace.WithAttributes(
			attribute.String("groq.model", c.opts.ChatModel),
			attribute.Int("groq.transcript_chars", len(transcript)),
		),
	)
	defer func() { endSpan(span, rerr) }()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.opts.ChatModel,
		Temperature: c.opts.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(c.opts.StoreName, inventory)},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// SystemPrompt builds the instructions given to the chat model.
func SystemPrompt(storeName, inventory string) string {
	return fmt.Sprintf(`Eres el cajero de %s.
INVENTARIO: %s.
TAREA: Responde ÚNICAMENTE con este formato por línea: PRODUCTO | CANTIDAD | SUBTOTAL_CALCULADO
Ejemplo: si el precio es 3500 y piden 2, pon: Coca Cola | 2 | 7000`, storeName, inventory)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

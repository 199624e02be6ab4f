// Package voice turns a dictated order into cart lines: audio is transcribed,
// the transcript is structured by a language model against the current
// inventory, and the model's text is parsed line by line.
//
// The pipeline is a single pass. There are no retries and no streaming: the
// whole clip is buffered before the transcriber is called.
package voice

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/morita/pos/internal/domain/cart"
)

var (
	// ErrEmptyAudio is returned when no audio bytes were captured.
	ErrEmptyAudio = errors.New("empty audio")
	// ErrEmptyTranscript is returned when dictation produced no text.
	ErrEmptyTranscript = errors.New("empty transcript")
	// ErrNoPendingOrder is returned when accepting an order that was never extracted.
	ErrNoPendingOrder = errors.New("no pending voice order")
)

// Transcriber converts a recorded clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Extractor structures free text into order lines given an inventory snapshot.
type Extractor interface {
	Extract(ctx context.Context, transcript, inventory string) (string, error)
}

// Snapshotter renders the inventory for the extractor prompt.
type Snapshotter interface {
	Snapshot() string
}

// Order is the outcome of one voice interaction.
type Order struct {
	Transcript string
	Text       string
	Results    []Result
}

// Lines returns the cart lines the order parsed into.
func (o *Order) Lines() []cart.Line {
	return Lines(o.Results)
}

// Pipeline wires a Transcriber and an Extractor to the line parser.
type Pipeline struct {
	stt Transcriber
	ext Extractor
	inv Snapshotter
	lg  *zap.Logger

	orders metric.Int64Counter
	lines  metric.Int64Counter
}

// NewPipeline creates a Pipeline. Counters are registered on meter.
func NewPipeline(stt Transcriber, ext Extractor, inv Snapshotter, lg *zap.Logger, meter metric.Meter) (*Pipeline, error) {
	orders, err := meter.Int64Counter("pos.voice.orders",
		metric.WithDescription("Voice orders processed, by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	lines, err := meter.Int64Counter("pos.voice.lines",
		metric.WithDescription("Order lines returned by the extractor, by parse outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "lines counter")
	}

	return &Pipeline{
		stt:    stt,
		ext:    ext,
		inv:    inv,
		lg:     lg,
		orders: orders,
		lines:  lines,
	}, nil
}

// Process runs the full pipeline on a recorded clip.
func (p *Pipeline) Process(ctx context.Context, audio []byte) (*Order, error) {
	if len(audio) == 0 {
		p.record(ctx, "empty_audio")
		return nil, ErrEmptyAudio
	}

	transcript, err := p.stt.Transcribe(ctx, audio)
	if err != nil {
		p.record(ctx, "transcribe_error")
		return nil, errors.Wrap(err, "transcribe")
	}

	return p.ProcessText(ctx, transcript)
}

// ProcessText runs extraction and parsing on an already transcribed or typed
// order.
func (p *Pipeline) ProcessText(ctx context.Context, transcript string) (*Order, error) {
	if transcript == "" {
		p.record(ctx, "empty_transcript")
		return nil, ErrEmptyTranscript
	}

	text, err := p.ext.Extract(ctx, transcript, p.inv.Snapshot())
	if err != nil {
		p.record(ctx, "extract_error")
		return nil, errors.Wrap(err, "extract order")
	}

	order := &Order{
		Transcript: transcript,
		Text:       text,
		Results:    Parse(text),
	}
	for _, r := range order.Results {
		p.lines.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", r.Outcome.String())))
		if r.Outcome == OutcomeMalformed {
			p.lg.Debug("Dropped malformed order line", zap.String("line", r.Raw), zap.Error(r.Err))
		}
	}
	p.record(ctx, "ok")

	return order, nil
}

func (p *Pipeline) record(ctx context.Context, result string) {
	p.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

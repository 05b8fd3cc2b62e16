// Package dispatch runs one command batch against the session context that
// owns the caller's identity.
//
// A dispatch resolves the context, binds it as the active context for the
// call, decodes the payload with the context's codec, applies the commands,
// and encodes the results. Every failure ends the dispatch with a status and
// an observer event; nothing is returned to the caller except the status and,
// on success, the encoded body.
//
//	d, err := dispatch.New(&cfg, registry, dispatch.WithObserver(obs))
//	resp := d.Handle(ctx, &dispatch.Request{Identity: id, Body: r.Body})
package dispatch

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/remoting/activectx"
	"github.com/tailored-agentic-units/remoting/core/command"
	"github.com/tailored-agentic-units/remoting/observability"
	"github.com/tailored-agentic-units/remoting/session"
)

const (
	tracerName = "github.com/tailored-agentic-units/remoting/dispatch"
	source     = "dispatch.Handle"
)

// Option configures a Dispatcher after config-driven initialization.
type Option func(*Dispatcher)

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithMetrics enables Prometheus dispatch metrics.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) { d.tracer = tp.Tracer(tracerName) }
}

// Dispatcher executes command batches against resolved session contexts.
// It holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	resolver        session.Resolver
	observer        observability.Observer
	metrics         *Metrics
	tracer          trace.Tracer
	maxPayloadBytes int64
}

// New creates a Dispatcher that resolves contexts through resolver.
func New(cfg *Config, resolver session.Resolver, opts ...Option) (*Dispatcher, error) {
	if resolver == nil {
		return nil, ErrNilResolver
	}

	d := &Dispatcher{
		resolver:        resolver,
		observer:        observability.NewSlogObserver(nil),
		tracer:          otel.GetTracerProvider().Tracer(tracerName),
		maxPayloadBytes: cfg.MaxPayloadBytes,
	}

	for _, opt := range opts {
		opt(d)
	}
	if d.observer == nil {
		d.observer = observability.NoOpObserver{}
	}

	return d, nil
}

// Handle runs one dispatch to a single terminal outcome. It never panics on
// collaborator failures and never returns internal detail to the caller.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "remoting.dispatch", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	resp, outcome := d.dispatch(ctx, req)

	span.SetAttributes(attribute.String("remoting.outcome", string(outcome)))
	if outcome != OutcomeSuccess {
		span.SetStatus(codes.Error, string(outcome))
	}
	d.metrics.observe(outcome, time.Since(start))

	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) (*Response, Outcome) {
	if req == nil {
		d.emit(ctx, EventResolveFailed, observability.LevelError, "", ErrNilRequest, nil)
		return fail(OutcomeUnresolved)
	}

	sc, ok := d.resolver.Resolve(ctx, req.Identity)
	if !ok || sc == nil {
		d.emit(ctx, EventResolveFailed, observability.LevelError, "", ErrContextNotFound, map[string]any{
			"client": req.Client,
		})
		return fail(OutcomeUnresolved)
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("remoting.context_id", sc.ID()))

	ctx, release := activectx.Bind(ctx, sc)
	defer release()

	d.emit(ctx, EventReceive, observability.LevelVerbose, sc.ID(), nil, requestData(sc, req))

	codec := sc.Codec()

	payload, err := d.readPayload(req.Body)
	if err != nil {
		d.emit(ctx, EventDecodeFailed, observability.LevelWarning, sc.ID(), err, nil)
		return fail(OutcomeDecodeFailed)
	}

	commands, err := codec.Decode(payload)
	if err != nil {
		d.emit(ctx, EventDecodeFailed, observability.LevelWarning, sc.ID(), err, map[string]any{
			"payload_bytes": len(payload),
		})
		return fail(OutcomeDecodeFailed)
	}
	d.metrics.countCommands("in", len(commands))

	results, err := apply(ctx, sc, commands)
	if err != nil {
		d.emit(ctx, EventApplyFailed, observability.LevelError, sc.ID(), err, map[string]any{
			"commands": len(commands),
		})
		return fail(OutcomeApplyFailed)
	}

	body, err := codec.Encode(results)
	if err != nil {
		d.emit(ctx, EventEncodeFailed, observability.LevelError, sc.ID(), err, map[string]any{
			"results": len(results),
		})
		return fail(OutcomeEncodeFailed)
	}
	d.metrics.countCommands("out", len(results))

	d.emit(ctx, EventRespond, observability.LevelVerbose, sc.ID(), nil, map[string]any{
		"commands": len(commands),
		"results":  len(results),
		"client":   req.Client,
	})

	return &Response{
		Status:      StatusOK,
		ContentType: codec.ContentType(),
		Body:        body,
	}, OutcomeSuccess
}

// apply converts a panicking context into an apply failure so partial
// results are never returned.
func apply(ctx context.Context, sc session.Context, commands []command.Command) (results []command.Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("%w: %v", ErrApplyPanic, r)
		}
	}()
	return sc.Apply(ctx, commands)
}

func (d *Dispatcher) readPayload(body io.Reader) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	if d.maxPayloadBytes > 0 {
		body = io.LimitReader(body, d.maxPayloadBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if d.maxPayloadBytes > 0 && int64(len(data)) > d.maxPayloadBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrPayloadTooLarge, d.maxPayloadBytes)
	}
	return data, nil
}

func (d *Dispatcher) emit(ctx context.Context, t observability.EventType, level observability.Level, contextID string, err error, data map[string]any) {
	d.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		ContextID: contextID,
		Err:       err,
		Data:      data,
	})
}

func requestData(sc session.Context, req *Request) map[string]any {
	data := map[string]any{"client": req.Client}
	if info := sc.SessionInfo(); info != nil {
		data["session_id"] = info.ID()
	}
	return data
}

func fail(outcome Outcome) (*Response, Outcome) {
	return &Response{Status: outcome.Status()}, outcome
}

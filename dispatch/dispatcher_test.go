package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tailored-agentic-units/remoting/activectx"
	"github.com/tailored-agentic-units/remoting/core/command"
	"github.com/tailored-agentic-units/remoting/dispatch"
	"github.com/tailored-agentic-units/remoting/observability"
	"github.com/tailored-agentic-units/remoting/session"
)

// recordingCodec decodes to a fixed sequence and records what it encodes.
type recordingCodec struct {
	decoded   []command.Command
	decodeErr error
	encodeErr error
	encoded   string

	mu           sync.Mutex
	decodeCalls  int
	encodeCalls  int
	encodedInput []command.Command
	payload      string
}

func (c *recordingCodec) Name() string { return "recording" }
func (c *recordingCodec) ContentType() string { return "application/json; charset=UTF-8" }

func (c *recordingCodec) Decode(payload []byte) ([]command.Command, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decodeCalls++
	c.payload = string(payload)
	if c.decodeErr != nil {
		return nil, c.decodeErr
	}
	return c.decoded, nil
}

func (c *recordingCodec) Encode(commands []command.Command) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encodeCalls++
	c.encodedInput = commands
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	return []byte(c.encoded), nil
}

// stubContext applies through applyFn and records its inputs.
type stubContext struct {
	id      string
	codec   command.Codec
	info    *session.Info
	applyFn func(ctx context.Context, commands []command.Command) ([]command.Command, error)

	mu         sync.Mutex
	applyCalls int
	applied    []command.Command
	applyCtx   context.Context
}

func (s *stubContext) ID() string { return s.id }
func (s *stubContext) Codec() command.Codec { return s.codec }
func (s *stubContext) SessionInfo() *session.Info { return s.info }

func (s *stubContext) Apply(ctx context.Context, commands []command.Command) ([]command.Command, error) {
	s.mu.Lock()
	s.applyCalls++
	s.applied = commands
	s.applyCtx = ctx
	s.mu.Unlock()
	if s.applyFn == nil {
		return nil, nil
	}
	return s.applyFn(ctx, commands)
}

func resolverFor(sc session.Context) session.Resolver {
	return session.ResolverFunc(func(_ context.Context, identity string) (session.Context, bool) {
		if sc == nil || identity != sc.ID() {
			return nil, false
		}
		return sc, true
	})
}

func newDispatcher(t *testing.T, resolver session.Resolver, opts ...dispatch.Option) (*dispatch.Dispatcher, *observability.Recorder) {
	t.Helper()
	rec := &observability.Recorder{}
	cfg := dispatch.DefaultConfig()
	d, err := dispatch.New(&cfg, resolver, append([]dispatch.Option{dispatch.WithObserver(rec)}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d, rec
}

func TestNew_NilResolver(t *testing.T) {
	cfg := dispatch.DefaultConfig()
	if _, err := dispatch.New(&cfg, nil); !errors.Is(err, dispatch.ErrNilResolver) {
		t.Errorf("got error %v, want ErrNilResolver", err)
	}
}

func TestHandle_Success(t *testing.T) {
	a, b := command.New("A", nil), command.New("B", nil)
	r := command.New("R", nil)
	codec := &recordingCodec{decoded: []command.Command{a, b}, encoded: `{"result":"R"}`}
	sc := &stubContext{
		id:    "ctx-1",
		codec: codec,
		info:  session.NewInfo(),
		applyFn: func(context.Context, []command.Command) ([]command.Command, error) {
			return []command.Command{r}, nil
		},
	}
	d, rec := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{
		Identity: "ctx-1",
		Body:     strings.NewReader(`[{"id":"A"},{"id":"B"}]`),
		Client:   "test-agent/1.0",
	})

	if resp.Status != dispatch.StatusOK {
		t.Fatalf("got status %v, want ok", resp.Status)
	}
	if !strings.HasPrefix(resp.ContentType, "application/json") {
		t.Errorf("got content type %q, want application/json", resp.ContentType)
	}
	if string(resp.Body) != `{"result":"R"}` {
		t.Errorf("got body %q, want %q", resp.Body, `{"result":"R"}`)
	}
	if codec.payload != `[{"id":"A"},{"id":"B"}]` {
		t.Errorf("codec got payload %q, want full body", codec.payload)
	}
	if len(rec.AtLevel(observability.LevelError)) != 0 {
		t.Errorf("success should log no errors, got %v", rec.AtLevel(observability.LevelError))
	}
	if len(rec.OfType(dispatch.EventReceive)) != 1 || len(rec.OfType(dispatch.EventRespond)) != 1 {
		t.Error("expected one receive and one respond event")
	}
}

func TestHandle_PreservesOrder(t *testing.T) {
	decoded := []command.Command{command.New("1", nil), command.New("2", nil), command.New("3", nil)}
	results := []command.Command{command.New("z", nil), command.New("y", nil), command.New("x", nil)}
	codec := &recordingCodec{decoded: decoded, encoded: "[]"}
	sc := &stubContext{
		id:    "ctx-order",
		codec: codec,
		applyFn: func(context.Context, []command.Command) ([]command.Command, error) {
			return results, nil
		},
	}
	d, _ := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-order", Body: strings.NewReader("[]")})
	if resp.Status != dispatch.StatusOK {
		t.Fatalf("got status %v, want ok", resp.Status)
	}

	for i := range decoded {
		if sc.applied[i].Name() != decoded[i].Name() {
			t.Errorf("apply input %d: got %q, want %q", i, sc.applied[i].Name(), decoded[i].Name())
		}
	}
	for i := range results {
		if codec.encodedInput[i].Name() != results[i].Name() {
			t.Errorf("encode input %d: got %q, want %q", i, codec.encodedInput[i].Name(), results[i].Name())
		}
	}
}

func TestHandle_Unresolved(t *testing.T) {
	codec := &recordingCodec{}
	sc := &stubContext{id: "ctx-1", codec: codec}
	d, rec := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{
		Identity: "someone-else",
		Body:     strings.NewReader(`[{"id":"A"}]`),
	})

	if resp.Status != dispatch.StatusInternalError {
		t.Errorf("got status %v, want internal_error", resp.Status)
	}
	if len(resp.Body) != 0 || resp.ContentType != "" {
		t.Errorf("failure response should be empty, got %q (%q)", resp.Body, resp.ContentType)
	}
	if codec.decodeCalls != 0 || sc.applyCalls != 0 || codec.encodeCalls != 0 {
		t.Errorf("got decode=%d apply=%d encode=%d, want no calls", codec.decodeCalls, sc.applyCalls, codec.encodeCalls)
	}

	errs := rec.AtLevel(observability.LevelError)
	if len(errs) != 1 {
		t.Fatalf("got %d error events, want 1", len(errs))
	}
	if errs[0].Type != dispatch.EventResolveFailed || !errors.Is(errs[0].Err, dispatch.ErrContextNotFound) {
		t.Errorf("got event %s (%v), want resolve failure", errs[0].Type, errs[0].Err)
	}
}

func TestHandle_NilRequest(t *testing.T) {
	d, rec := newDispatcher(t, resolverFor(nil))

	resp := d.Handle(context.Background(), nil)

	if resp.Status != dispatch.StatusInternalError {
		t.Errorf("got status %v, want internal_error", resp.Status)
	}
	if len(rec.AtLevel(observability.LevelError)) != 1 {
		t.Error("expected one error event for nil request")
	}
}

func TestHandle_DecodeFailure(t *testing.T) {
	codec := &recordingCodec{decodeErr: command.ErrMalformedPayload}
	sc := &stubContext{id: "ctx-1", codec: codec}
	d, rec := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{
		Identity: "ctx-1",
		Body:     strings.NewReader(`[{"id":`),
	})

	if resp.Status != dispatch.StatusBadRequest {
		t.Errorf("got status %v, want bad_request", resp.Status)
	}
	if len(resp.Body) != 0 {
		t.Errorf("got body %q, want empty", resp.Body)
	}
	if sc.applyCalls != 0 || codec.encodeCalls != 0 {
		t.Errorf("got apply=%d encode=%d, want none", sc.applyCalls, codec.encodeCalls)
	}

	events := rec.OfType(dispatch.EventDecodeFailed)
	if len(events) != 1 {
		t.Fatalf("got %d decode events, want 1", len(events))
	}
	if events[0].ContextID != "ctx-1" {
		t.Errorf("got context id %q, want %q", events[0].ContextID, "ctx-1")
	}
	if events[0].Level != observability.LevelWarning {
		t.Errorf("decode failure should not escalate past warning, got %v", events[0].Level)
	}
}

func TestHandle_DecodeFailure_RealCodec(t *testing.T) {
	payloads := []struct {
		name string
		body string
	}{
		{name: "truncated", body: `[{"id":"ping"`},
		{name: "empty", body: ""},
		{name: "not json", body: "hello"},
		{name: "null", body: "null"},
	}

	for _, tt := range payloads {
		t.Run(tt.name, func(t *testing.T) {
			sc := &stubContext{id: "ctx-1", codec: command.JSONCodec{}}
			d, _ := newDispatcher(t, resolverFor(sc))

			resp := d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-1", Body: strings.NewReader(tt.body)})

			if resp.Status != dispatch.StatusBadRequest {
				t.Errorf("got status %v, want bad_request", resp.Status)
			}
			if sc.applyCalls != 0 {
				t.Error("apply should not run after a decode failure")
			}
		})
	}
}

func TestHandle_EmptyProtoBatch(t *testing.T) {
	sc := &stubContext{id: "ctx-1", codec: command.ProtoCodec{}}
	d, _ := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-1", Body: strings.NewReader("")})

	if resp.Status != dispatch.StatusOK {
		t.Fatalf("got status %v, want ok", resp.Status)
	}
	if sc.applyCalls != 1 {
		t.Errorf("got %d apply calls, want 1", sc.applyCalls)
	}
	if resp.ContentType != "application/proto" {
		t.Errorf("got content type %q, want application/proto", resp.ContentType)
	}
	if len(resp.Body) != 0 {
		t.Errorf("got %d body bytes, want the empty list encoding", len(resp.Body))
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestHandle_ReadFailure(t *testing.T) {
	codec := &recordingCodec{}
	sc := &stubContext{id: "ctx-1", codec: codec}
	d, _ := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-1", Body: failingReader{}})

	if resp.Status != dispatch.StatusBadRequest {
		t.Errorf("got status %v, want bad_request", resp.Status)
	}
	if codec.decodeCalls != 0 || sc.applyCalls != 0 {
		t.Error("decode and apply should not run after a read failure")
	}
}

func TestHandle_PayloadTooLarge(t *testing.T) {
	codec := &recordingCodec{}
	sc := &stubContext{id: "ctx-1", codec: codec}
	rec := &observability.Recorder{}
	cfg := dispatch.Config{MaxPayloadBytes: 8}
	d, err := dispatch.New(&cfg, resolverFor(sc), dispatch.WithObserver(rec))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp := d.Handle(context.Background(), &dispatch.Request{
		Identity: "ctx-1",
		Body:     strings.NewReader(strings.Repeat("x", 9)),
	})

	if resp.Status != dispatch.StatusBadRequest {
		t.Errorf("got status %v, want bad_request", resp.Status)
	}
	events := rec.OfType(dispatch.EventDecodeFailed)
	if len(events) != 1 || !errors.Is(events[0].Err, dispatch.ErrPayloadTooLarge) {
		t.Errorf("expected a payload-too-large decode event, got %v", events)
	}
}

func TestHandle_ApplyFailure(t *testing.T) {
	codec := &recordingCodec{decoded: []command.Command{command.New("A", nil)}, encoded: "unused"}
	sc := &stubContext{
		id:    "ctx-1",
		codec: codec,
		applyFn: func(context.Context, []command.Command) ([]command.Command, error) {
			return []command.Command{command.New("partial", nil)}, errors.New("business rule violated")
		},
	}
	d, rec := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-1", Body: strings.NewReader("[]")})

	if resp.Status != dispatch.StatusInternalError {
		t.Errorf("got status %v, want internal_error", resp.Status)
	}
	if len(resp.Body) != 0 {
		t.Errorf("partial results leaked into body: %q", resp.Body)
	}
	if codec.encodeCalls != 0 {
		t.Error("encode should not run after an apply failure")
	}

	events := rec.OfType(dispatch.EventApplyFailed)
	if len(events) != 1 || events[0].ContextID != "ctx-1" || events[0].Level != observability.LevelError {
		t.Errorf("expected one error-level apply event with context id, got %v", events)
	}
}

func TestHandle_ApplyPanic(t *testing.T) {
	codec := &recordingCodec{decoded: []command.Command{command.New("A", nil)}}
	sc := &stubContext{
		id:    "ctx-1",
		codec: codec,
		applyFn: func(context.Context, []command.Command) ([]command.Command, error) {
			panic("nil map write")
		},
	}
	d, rec := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-1", Body: strings.NewReader("[]")})

	if resp.Status != dispatch.StatusInternalError {
		t.Errorf("got status %v, want internal_error", resp.Status)
	}
	events := rec.OfType(dispatch.EventApplyFailed)
	if len(events) != 1 || !errors.Is(events[0].Err, dispatch.ErrApplyPanic) {
		t.Errorf("expected an apply panic event, got %v", events)
	}
}

func TestHandle_EncodeFailure(t *testing.T) {
	codec := &recordingCodec{
		decoded:   []command.Command{command.New("A", nil)},
		encodeErr: errors.New("cannot encode"),
	}
	sc := &stubContext{
		id:    "ctx-1",
		codec: codec,
		applyFn: func(context.Context, []command.Command) ([]command.Command, error) {
			return []command.Command{command.New("R", nil)}, nil
		},
	}
	d, rec := newDispatcher(t, resolverFor(sc))

	resp := d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-1", Body: strings.NewReader("[]")})

	if resp.Status != dispatch.StatusInternalError {
		t.Errorf("got status %v, want internal_error", resp.Status)
	}
	if len(resp.Body) != 0 || resp.ContentType != "" {
		t.Errorf("encode failure should leave the response empty, got %q (%q)", resp.Body, resp.ContentType)
	}
	if len(rec.OfType(dispatch.EventEncodeFailed)) != 1 {
		t.Error("expected one encode failure event")
	}
}

func TestHandle_BindsActiveContext(t *testing.T) {
	info := session.NewInfo()
	var (
		seen     session.Context
		seenInfo *session.Info
	)
	sc := &stubContext{
		id:    "ctx-1",
		codec: &recordingCodec{},
		info:  info,
	}
	sc.applyFn = func(ctx context.Context, _ []command.Command) ([]command.Command, error) {
		seen, _ = activectx.Current(ctx)
		seenInfo = activectx.CurrentSessionInfo(ctx)
		return nil, nil
	}
	d, _ := newDispatcher(t, resolverFor(sc))

	d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-1", Body: strings.NewReader("[]")})

	if seen == nil || seen.ID() != "ctx-1" {
		t.Errorf("apply observed context %v, want ctx-1", seen)
	}
	if seenInfo != info {
		t.Error("apply should observe the linked session")
	}
}

// Decode and read failures are not listed: the codec never receives the
// context, so nothing on those paths can observe the binding.
func TestHandle_UnbindsOnEveryOutcome(t *testing.T) {
	tests := []struct {
		name    string
		codec   *recordingCodec
		applyFn func(context.Context, []command.Command) ([]command.Command, error)
		want    dispatch.Status
	}{
		{
			name:  "success",
			codec: &recordingCodec{},
			want:  dispatch.StatusOK,
		},
		{
			name:  "apply failure",
			codec: &recordingCodec{},
			applyFn: func(context.Context, []command.Command) ([]command.Command, error) {
				return nil, errors.New("boom")
			},
			want: dispatch.StatusInternalError,
		},
		{
			name:  "apply panic",
			codec: &recordingCodec{},
			applyFn: func(context.Context, []command.Command) ([]command.Command, error) {
				panic("boom")
			},
			want: dispatch.StatusInternalError,
		},
		{
			name:  "encode failure",
			codec: &recordingCodec{encodeErr: errors.New("boom")},
			want:  dispatch.StatusInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &stubContext{id: "ctx-1", codec: tt.codec, applyFn: tt.applyFn}
			d, _ := newDispatcher(t, resolverFor(sc))
			parent := context.Background()

			resp := d.Handle(parent, &dispatch.Request{Identity: "ctx-1", Body: strings.NewReader("[]")})

			if resp.Status != tt.want {
				t.Errorf("got status %v, want %v", resp.Status, tt.want)
			}
			if sc.applyCtx == nil {
				t.Fatal("apply was not reached")
			}
			if _, ok := activectx.Current(sc.applyCtx); ok {
				t.Error("binding still visible on the dispatch path after Handle returned")
			}
			if _, ok := activectx.Current(parent); ok {
				t.Error("binding leaked into the caller's context")
			}
		})
	}
}

func TestHandle_ConcurrentIsolation(t *testing.T) {
	const n = 50

	contexts := make(map[string]*stubContext, n)
	for i := range n {
		id := fmt.Sprintf("ctx-%d", i)
		sc := &stubContext{id: id, codec: &recordingCodec{decoded: []command.Command{command.New("A", nil)}}}
		sc.applyFn = func(ctx context.Context, _ []command.Command) ([]command.Command, error) {
			got, ok := activectx.Current(ctx)
			if !ok || got.ID() != id {
				return nil, fmt.Errorf("observed %v, want %s", got, id)
			}
			return nil, nil
		}
		contexts[id] = sc
	}
	resolver := session.ResolverFunc(func(_ context.Context, identity string) (session.Context, bool) {
		sc, ok := contexts[identity]
		return sc, ok
	})
	d, _ := newDispatcher(t, resolver)

	var wg sync.WaitGroup
	statuses := make(chan dispatch.Status, n)
	for id := range contexts {
		wg.Go(func() {
			resp := d.Handle(context.Background(), &dispatch.Request{Identity: id, Body: strings.NewReader("[]")})
			statuses <- resp.Status
		})
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		if status != dispatch.StatusOK {
			t.Errorf("got status %v, want ok (a dispatch observed another context)", status)
		}
	}
}

func TestHandle_EndToEndWithRegistry(t *testing.T) {
	router := session.NewRouter()
	router.Register("ping", func(context.Context, command.Command) ([]command.Command, error) {
		return []command.Command{command.New("pong", nil)}, nil
	})
	cfg := session.DefaultConfig()
	reg, err := session.NewRegistry(&cfg, router)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	sc := reg.Create()
	d, _ := newDispatcher(t, reg)

	resp := d.Handle(context.Background(), &dispatch.Request{Identity: sc.ID(), Body: strings.NewReader(`[{"id":"ping"}]`)})

	if resp.Status != dispatch.StatusOK {
		t.Fatalf("got status %v, want ok", resp.Status)
	}
	if string(resp.Body) != `[{"id":"pong"}]` {
		t.Errorf("got body %s, want [{\"id\":\"pong\"}]", resp.Body)
	}
}

func TestHandle_Tracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	sc := &stubContext{id: "ctx-1", codec: &recordingCodec{}}
	d, _ := newDispatcher(t, resolverFor(sc), dispatch.WithTracerProvider(tp))

	d.Handle(context.Background(), &dispatch.Request{Identity: "ctx-1", Body: strings.NewReader("[]")})
	d.Handle(context.Background(), &dispatch.Request{Identity: "nobody"})

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Name() != "remoting.dispatch" {
		t.Errorf("got span name %q, want %q", spans[0].Name(), "remoting.dispatch")
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("successful dispatch span should not be marked as error")
	}
	if spans[1].Status().Code != codes.Error {
		t.Error("unresolved dispatch span should be marked as error")
	}

	var outcome string
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "remoting.outcome" {
			outcome = kv.Value.AsString()
		}
	}
	if outcome != string(dispatch.OutcomeUnresolved) {
		t.Errorf("got outcome attribute %q, want %q", outcome, dispatch.OutcomeUnresolved)
	}
}

func TestOutcome_Status(t *testing.T) {
	tests := []struct {
		outcome dispatch.Outcome
		want    dispatch.Status
	}{
		{dispatch.OutcomeSuccess, dispatch.StatusOK},
		{dispatch.OutcomeUnresolved, dispatch.StatusInternalError},
		{dispatch.OutcomeDecodeFailed, dispatch.StatusBadRequest},
		{dispatch.OutcomeApplyFailed, dispatch.StatusInternalError},
		{dispatch.OutcomeEncodeFailed, dispatch.StatusInternalError},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			if got := tt.outcome.Status(); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

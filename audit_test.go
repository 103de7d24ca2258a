package credcore

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

type panicSink struct{}

func (panicSink) Emit(context.Context, AuditEvent) { panic("boom") }

func collectEvents(ch <-chan AuditEvent, max int, wait time.Duration) []AuditEvent {
	events := make([]AuditEvent, 0, max)
	timeout := time.After(wait)
	for len(events) < max {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	env := newTestEnv(t, cfg)
	env.register(t, testEmail, testPassword)
	_, _ = env.engine.Login(WithClientIP(context.Background(), "203.0.113.1"), testEmail, "wrong")

	if env.engine.audit != nil {
		t.Fatal("expected no dispatcher when audit is disabled")
	}
}

func TestAuditSinkReceivesEventWithFields(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, testConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	reg := env.register(t, testEmail, testPassword)

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.33"), "curl/8")
	_, _ = env.engine.Login(ctx, testEmail, "super-secret-password")

	for _, ev := range collectEvents(sink.Events(), 4, 2*time.Second) {
		if ev.EventType != auditEventLoginFailure {
			continue
		}
		if ev.IP != "198.51.100.33" || ev.UserAgent != "curl/8" {
			t.Fatalf("unexpected client fields %+v", ev)
		}
		if ev.AccountID != reg.Account.ID || ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Error != string(auditErrInvalidCredentials) {
			t.Fatalf("expected error code, got %q", ev.Error)
		}
		return
	}
	t.Fatal("expected a login_failure event")
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	sink := NewChannelSink(64)
	env := newTestEnv(t, testConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	reg := env.register(t, testEmail, testPassword)
	ctx := context.Background()

	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	_ = env.engine.RequestPasswordReset(ctx, testEmail)
	resetCode := env.notifier.lastCode(t, NotifyPasswordReset)
	_ = env.engine.ResetPassword(ctx, testEmail, resetCode, "Newpass1!x")

	needles := []string{
		testPassword,
		"Newpass1!x",
		resetCode,
		login.Token,
		reg.Token,
		env.account(t, reg.Account.ID).PasswordHash,
	}

	events := collectEvents(sink.Events(), 8, time.Second)
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("secret leaked in error field of %s", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("secret leaked in metadata of %s", ev.EventType)
				}
			}
		}
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, zap.NewNop(), sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, zap.NewNop(), sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditDispatcherRecoversFromPanickingSink(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	counting := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, zap.New(core), panicSink{}, counting)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()

	if counting.Count() != 1 {
		t.Fatalf("healthy sink must still receive the event, got %d", counting.Count())
	}
	if logs.Len() == 0 {
		t.Fatal("expected the panic to be logged")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginSuccess,
		AccountID: "u1",
		IP:        "127.0.0.1",
		Success:   true,
	})

	if !buf.Contains("login_success") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"account_id":"u1"`) {
		t.Fatal("expected JSON log line to contain account id")
	}
}

func TestAuditZapSinkLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess, Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure, Error: "invalid_credentials"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.WarnLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, zap.NewNop(), &countingSink{})

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(b.buf.String(), v)
}

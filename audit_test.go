package authcore

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/oauth/providers"
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

func collectEvents(sink *ChannelSink, want int) []AuditEvent {
	events := make([]AuditEvent, 0, want)
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev := <-sink.Events():
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
	sink := &countingSink{}
	env := newTestEnv(t, cfg, withSink(sink))

	env.register(t, "alice@example.com")
	_, _ = env.engine.Login(context.Background(), "alice@example.com", "wrong-password-1", laptop)
	env.engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditLoginFailureCarriesCodeAndIP(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(16)
	env := newTestEnv(t, cfg, withSink(sink))

	reg := env.register(t, "alice@example.com")
	_, _ = env.engine.Login(context.Background(), "alice@example.com", "wrong-password-1", DeviceContext{ClientIP: "::ffff:203.0.113.7", UserAgent: "ua"})

	events := collectEvents(sink, 2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != auditEventRegisterSuccess || !events[0].Success {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	failure := events[1]
	if failure.Type != auditEventLoginFailure || failure.Success {
		t.Fatalf("unexpected failure event: %+v", failure)
	}
	if failure.Error != "invalid_credentials" || failure.UserID != reg.UserID || failure.IP != "203.0.113.7" {
		t.Fatalf("unexpected failure fields: %+v", failure)
	}
}

func TestAuditSocialEventsNameProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(16)
	env := newTestEnv(t, cfg, withSink(sink), withAdapters(googleFake()))

	state := startRoundTrip(t, env, providers.Google, providers.PlatformWeb, laptop)
	if _, err := env.engine.HandleSocialCallback(context.Background(), providers.Google, "code-new", state, providers.PlatformWeb, laptop); err != nil {
		t.Fatalf("callback: %v", err)
	}

	events := collectEvents(sink, 2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	last := events[1]
	if last.Type != auditEventSocialLoginSuccess || last.Provider != "google" || last.Metadata["created"] != "true" {
		t.Fatalf("unexpected social event: %+v", last)
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(32)
	env := newTestEnv(t, cfg, withSink(sink))
	ctx := context.Background()

	reg := env.register(t, "alice@example.com")
	if _, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken, laptop); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	_, _ = env.engine.Refresh(ctx, reg.Tokens.AccessToken, laptop)
	_, _ = env.engine.Login(ctx, "alice@example.com", "wrong-password-1", laptop)

	stored, err := env.accounts.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	needles := []string{testPassword, "wrong-password-1", reg.Tokens.RefreshToken, reg.Tokens.AccessToken, stored.PasswordHash}

	events := collectEvents(sink, 4)
	if len(events) == 0 {
		t.Fatal("expected at least one audit event")
	}
	for _, ev := range events {
		for _, needle := range needles {
			if strings.Contains(ev.Error, needle) {
				t.Fatalf("sensitive value leaked in audit error field: %q", needle)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, needle) || strings.Contains(v, needle) {
					t.Fatalf("sensitive value leaked in audit metadata: %q", needle)
				}
			}
		}
	}
}

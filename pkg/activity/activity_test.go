package activity

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status    int
		wantKind  FailureKind
		retryable bool
	}{
		{429, KindRateLimited, true},
		{400, KindClientInput, false},
		{415, KindClientInput, false},
		{500, KindTransient, true},
		{503, KindTransient, true},
	}
	for _, tc := range cases {
		f := ClassifyStatus(tc.status, "x")
		if f == nil {
			t.Fatalf("status %d: expected failure", tc.status)
		}
		if f.Kind != tc.wantKind {
			t.Errorf("status %d: kind = %s, want %s", tc.status, f.Kind, tc.wantKind)
		}
		if f.Retryable != tc.retryable {
			t.Errorf("status %d: retryable = %t, want %t", tc.status, f.Retryable, tc.retryable)
		}
	}
	if f := ClassifyStatus(200, ""); f != nil {
		t.Errorf("status 200: expected nil, got %v", f)
	}
}

func TestClassify_Passthrough(t *testing.T) {
	orig := Integrity("corrupt png")
	got := Classify(orig)
	if got != orig {
		t.Errorf("classified failure was re-classified")
	}
}

func TestClassify_Transport(t *testing.T) {
	if f := Classify(context.DeadlineExceeded); !f.Retryable || f.Kind != KindTransient {
		t.Errorf("deadline: got %v", f)
	}
	var netErr net.Error = &net.DNSError{Err: "no such host", IsTimeout: true}
	if f := Classify(netErr); !f.Retryable {
		t.Errorf("net error should be retryable: %v", f)
	}
	jsonErr := json.Unmarshal([]byte("{"), &struct{}{})
	if f := Classify(jsonErr); f.Retryable || f.Kind != KindIntegrity {
		t.Errorf("json error: got %v", f)
	}
}

func TestIsRetryable_UnclassifiedIsNot(t *testing.T) {
	if IsRetryable(errors.New("boom")) {
		t.Error("raw error must not be retryable")
	}
	if !IsRetryable(Transient("x")) {
		t.Error("transient failure must be retryable")
	}
}

func TestPolicy_RetriesThenSucceeds(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Execute(context.Background(), "gen", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPolicy_NonRetryableStopsImmediately(t *testing.T) {
	p := Policy{MaxAttempts: 4, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Execute(context.Background(), "gen", func(ctx context.Context) error {
		calls++
		return ClientInput("bad image")
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	f, ok := AsFailure(err)
	if !ok || f.Kind != KindClientInput || f.Retryable {
		t.Errorf("got %v", err)
	}
}

func TestPolicy_ExhaustionIsTerminal(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := p.Execute(context.Background(), "gen", func(ctx context.Context) error {
		calls++
		return Transient("still down")
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.Retryable || f.Kind != KindExhausted {
		t.Errorf("exhaustion must be non-retryable, got %v", f)
	}
}

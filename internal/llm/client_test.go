package llm

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"
)

func testClient(maxRetries int) *Client {
	return &Client{
		cfg: Config{
			RequestTimeout:    time.Second,
			MaxRetries:        maxRetries,
			BackoffInitial:    time.Millisecond,
			BackoffMax:        2 * time.Millisecond,
			BackoffJitterFrac: 0,
		},
		logger: log.New(os.Stderr, "", 0),
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	t.Parallel()

	c := testClient(3)
	calls := 0
	err := c.do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls <= 2 {
			return &TransientError{Err: errors.New("try again")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_DoesNotRetryPermanent(t *testing.T) {
	t.Parallel()

	c := testClient(10)
	calls := 0
	err := c.do(context.Background(), "test", func(context.Context) error {
		calls++
		return errors.New("permanent")
	})
	if err == nil || err.Error() != "permanent" {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_RespectsPerErrorRetryCap(t *testing.T) {
	t.Parallel()

	c := testClient(10)
	calls := 0
	err := c.do(context.Background(), "test", func(context.Context) error {
		calls++
		return &LimitedTransientError{Err: errors.New("truncated"), ExtraRetries: 1}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls (1 + 1 extra), got %d", calls)
	}
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	c := testClient(100)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := c.do(ctx, "test", func(context.Context) error {
		calls++
		cancel()
		return &TransientError{Err: errors.New("keep going")}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestBackoffSleep_CapsAtMax(t *testing.T) {
	t.Parallel()

	got := backoffSleep(100*time.Millisecond, 300*time.Millisecond, 0, 10)
	if got != 300*time.Millisecond {
		t.Fatalf("expected cap at 300ms, got %s", got)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	if isTransient(errors.New("nope")) {
		t.Fatal("plain error should not be transient")
	}
	if !isTransient(&TransientError{Err: errors.New("x")}) {
		t.Fatal("TransientError should be transient")
	}
	if !isTransient(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded should be transient")
	}
}

func TestDedupePreserveOrder(t *testing.T) {
	t.Parallel()

	got := dedupePreserveOrder([]string{"a", " b ", "a", "", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

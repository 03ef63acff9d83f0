package mock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestClient_Script(t *testing.T) {
	boom := errors.New("boom")
	c := New().WithResponse("default").Script(Reply{Err: boom}, Reply{Text: "second"})

	ctx := context.Background()
	if _, err := c.CompleteWithSystem(ctx, "s", "p1"); !errors.Is(err, boom) {
		t.Fatalf("first call error = %v, want boom", err)
	}
	if out, _ := c.CompleteWithSystem(ctx, "s", "p2"); out != "second" {
		t.Errorf("second call = %q", out)
	}
	if out, _ := c.CompleteWithSystem(ctx, "s", "p3"); out != "default" {
		t.Errorf("third call = %q", out)
	}
	if c.CallCount() != 3 {
		t.Errorf("CallCount() = %d", c.CallCount())
	}
	last, _ := c.LastCall()
	if last.Prompt != "p3" {
		t.Errorf("LastCall().Prompt = %q", last.Prompt)
	}
}

func TestClient_WithModel(t *testing.T) {
	c := New().WithName("openrouter")
	m := c.WithModel("qwen")

	if _, err := m.CompleteWithSystem(context.Background(), "s", "p"); err != nil {
		t.Fatal(err)
	}
	if c.CallCount() != 1 || c.Model("qwen").CallCount() != 1 {
		t.Errorf("parent=%d model=%d", c.CallCount(), c.Model("qwen").CallCount())
	}
	if c.AllCalls()[0].Model != "qwen" {
		t.Errorf("model = %q", c.AllCalls()[0].Model)
	}
	if c.WithModel("qwen") != m {
		t.Error("WithModel() should return the same client for the same model")
	}
}

func TestClient_DelayRespectsContext(t *testing.T) {
	c := New().WithDelay(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := c.CompleteWithSystem(ctx, "s", "p"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

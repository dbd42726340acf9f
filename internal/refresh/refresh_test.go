package refresh

import (
	"context"
	"testing"
)

func TestMemorySignal(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if p, _ := s.Pending(ctx); p {
		t.Fatal("new signal should be clear")
	}
	if err := s.Raise(ctx); err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if p, _ := s.Pending(ctx); !p {
		t.Fatal("expected pending after Raise")
	}

	got, err := Consume(ctx, s)
	if err != nil || !got {
		t.Fatalf("Consume = %v, %v", got, err)
	}
	if p, _ := s.Pending(ctx); p {
		t.Errorf("Consume should clear the signal")
	}
	if got, _ := Consume(ctx, s); got {
		t.Errorf("Consume on a clear signal reported pending")
	}
}

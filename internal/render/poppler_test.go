package render

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestRenderPages_requiresInitialize(t *testing.T) {
	p := NewPoppler()
	_, err := p.RenderPages(context.Background(), []byte("%PDF-1.4"), 1, 2)
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v", err)
	}
}

func TestInitialize_missingBinary(t *testing.T) {
	p := NewPoppler(WithBinary("quill-no-such-renderer"))
	if err := p.Initialize(); err == nil {
		t.Fatal("expected error for missing binary")
	}
	if err := p.Shutdown(); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	if _, err := exec.LookPath(DefaultBinary); err != nil {
		t.Skip("pdftoppm not installed")
	}
	p := NewPoppler(WithLogger(zaptest.NewLogger(t)))
	if err := p.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.Initialize(); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if _, err := p.RenderPages(context.Background(), []byte("not a pdf"), 1, 2); err == nil {
		t.Error("expected error for invalid pdf")
	}
	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := p.RenderPages(context.Background(), nil, 1, 2); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("after Shutdown: err = %v", err)
	}
}

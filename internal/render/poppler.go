// Package render rasterizes PDF pages for OCR.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/quill/internal/models"
)

// DefaultBinary is the poppler tool used to render pages.
const DefaultBinary = "pdftoppm"

// BaseDPI is the resolution of a page rendered at scale 1.
const BaseDPI = 72

var (
	// ErrNotInitialized is returned when RenderPages is called before Initialize or after Shutdown.
	ErrNotInitialized = errors.New("renderer not initialized")
)

// Poppler renders pages by running pdftoppm. It is created once per process; Initialize resolves the
// binary and a scratch directory, Shutdown removes the directory.
type Poppler struct {
	binary string
	logger *zap.Logger

	mu      sync.Mutex
	path    string
	workDir string
}

// Option configures a Poppler renderer.
type Option func(*Poppler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poppler) { p.logger = l }
}

// WithBinary overrides the pdftoppm binary name or path.
func WithBinary(binary string) Option {
	return func(p *Poppler) {
		if binary != "" {
			p.binary = binary
		}
	}
}

// NewPoppler returns an uninitialized renderer.
func NewPoppler(opts ...Option) *Poppler {
	p := &Poppler{binary: DefaultBinary, logger: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Initialize locates the binary and creates the scratch directory. Calling it twice is a no-op.
func (p *Poppler) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path != "" {
		return nil
	}
	path, err := exec.LookPath(p.binary)
	if err != nil {
		return fmt.Errorf("find %s: %w", p.binary, err)
	}
	dir, err := os.MkdirTemp("", "quill-render-*")
	if err != nil {
		return fmt.Errorf("create render dir: %w", err)
	}
	p.path, p.workDir = path, dir
	p.logger.Info("pdf renderer ready", zap.String("binary", path))
	return nil
}

// Shutdown releases the scratch directory.
func (p *Poppler) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.path == "" {
		return nil
	}
	err := os.RemoveAll(p.workDir)
	p.path, p.workDir = "", ""
	if err != nil {
		return fmt.Errorf("remove render dir: %w", err)
	}
	return nil
}

// RenderPages renders up to maxPages pages, one at a time, at scale × 72 dpi.
// Rendering stops at the first page past the end of the document.
func (p *Poppler) RenderPages(ctx context.Context, pdf []byte, maxPages int, scale float64) ([]models.PageImage, error) {
	p.mu.Lock()
	binary, workDir := p.path, p.workDir
	p.mu.Unlock()
	if binary == "" {
		return nil, ErrNotInitialized
	}
	if maxPages <= 0 {
		return nil, nil
	}
	if scale <= 0 {
		scale = 1
	}

	dir, err := os.MkdirTemp(workDir, "job-*")
	if err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	dpi := strconv.Itoa(int(float64(BaseDPI) * scale))
	var images []models.PageImage
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return images, err
		}
		prefix := filepath.Join(dir, fmt.Sprintf("page-%d", page))
		n := strconv.Itoa(page)
		cmd := exec.CommandContext(ctx, binary, "-f", n, "-l", n, "-png", "-r", dpi, "-singlefile", input, prefix)
		if out, err := cmd.CombinedOutput(); err != nil {
			if page == 1 {
				return nil, fmt.Errorf("render page 1: %w: %s", err, out)
			}
			p.logger.Debug("render stopped", zap.Int("page", page), zap.ByteString("output", out))
			break
		}
		data, err := os.ReadFile(prefix + ".png")
		if err != nil {
			return images, fmt.Errorf("read page %d: %w", page, err)
		}
		images = append(images, models.PageImage{Page: page, MediaType: "image/png", Data: data})
	}
	return images, nil
}

// Package ocr converts image references into text by driving the tesseract
// binary. The engine being absent from the runtime is an expected deployment
// state, not an error: each image then yields an explicit placeholder so the
// batch shape survives.
package ocr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrEngineUnavailable means the OCR binary is missing from the runtime.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// UnavailablePlaceholder is the per-image marker emitted when the engine is
// missing. Tests and downstream summaries key off the "unavailable" word.
const UnavailablePlaceholder = "[OCR unavailable]"

const fetchTimeout = 10 * time.Second

type Config struct {
	// Binary is the tesseract executable name or path. Defaults to
	// "tesseract".
	Binary string
	// Languages is passed to tesseract -l. Defaults to "eng".
	Languages string
	// ScratchDir receives the temporary image files. Defaults to os.TempDir.
	ScratchDir string

	HTTPClient *http.Client
	Logger     *log.Logger
}

// Engine runs OCR over batches of image references.
type Engine struct {
	bin        string
	langs      string
	scratchDir string
	httpClient *http.Client
	logger     *log.Logger
}

func New(cfg Config) *Engine {
	bin := cfg.Binary
	if bin == "" {
		bin = "tesseract"
	}
	langs := cfg.Languages
	if langs == "" {
		langs = "eng"
	}
	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = os.TempDir()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: fetchTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{bin: bin, langs: langs, scratchDir: scratch, httpClient: hc, logger: logger}
}

// Available reports whether the OCR binary can be found in the runtime.
func (e *Engine) Available() bool {
	_, err := exec.LookPath(e.bin)
	return err == nil
}

// ImagesToText OCRs each image reference and joins the results as labeled
// slide blocks. Unsupported or failing images are skipped; if the engine
// itself is unavailable every decodable image degrades to a placeholder.
// Zero usable images yield an empty string, never an error.
func (e *Engine) ImagesToText(ctx context.Context, refs []string) string {
	available := e.Available()
	var blocks []string

	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			break
		}
		data, err := e.fetchImage(ctx, ref)
		if err != nil {
			e.logger.Printf("ocr: image %d skipped: %v", i+1, err)
			continue
		}
		if !available {
			blocks = append(blocks, fmt.Sprintf("[Slide %d]\n%s", i+1, UnavailablePlaceholder))
			continue
		}
		text, err := e.runOCR(ctx, data)
		if err != nil {
			if errors.Is(err, ErrEngineUnavailable) {
				// The binary vanished between LookPath and exec; degrade the
				// rest of the batch the same way.
				available = false
				blocks = append(blocks, fmt.Sprintf("[Slide %d]\n%s", i+1, UnavailablePlaceholder))
				continue
			}
			e.logger.Printf("ocr: image %d failed: %v", i+1, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[Slide %d]\n%s", i+1, strings.TrimSpace(text)))
	}
	return strings.Join(blocks, "\n\n")
}

// fetchImage resolves one image reference to bytes. Supported forms: inline
// data: URIs, http(s) URLs, file:// URLs and bare local paths.
func (e *Engine) fetchImage(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "data:image/"):
		_, encoded, ok := strings.Cut(ref, ",")
		if !ok {
			return nil, fmt.Errorf("malformed data uri")
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode data uri: %w", err)
		}
		return data, nil

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := e.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)

	case strings.HasPrefix(ref, "file://"):
		return os.ReadFile(strings.TrimPrefix(ref, "file://"))

	case filepath.IsAbs(ref):
		return os.ReadFile(ref)

	default:
		return nil, fmt.Errorf("unsupported image reference %q", truncate(ref, 60))
	}
}

func (e *Engine) runOCR(ctx context.Context, image []byte) (string, error) {
	if _, err := exec.LookPath(e.bin); err != nil {
		return "", ErrEngineUnavailable
	}

	tmp, err := os.CreateTemp(e.scratchDir, "ocr-*.img")
	if err != nil {
		return "", err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(image); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.bin, tmp.Name(), "stdout", "-l", e.langs)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("tesseract: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", ErrEngineUnavailable
	}
	return string(out), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

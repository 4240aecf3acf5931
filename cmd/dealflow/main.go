package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sourcedesk/dealflow/internal/app"
	"github.com/sourcedesk/dealflow/internal/deck"
	"github.com/sourcedesk/dealflow/internal/enrich"
	"github.com/sourcedesk/dealflow/internal/extract/browser"
	"github.com/sourcedesk/dealflow/internal/extract/drive"
	"github.com/sourcedesk/dealflow/internal/extract/localfile"
	"github.com/sourcedesk/dealflow/internal/extract/ocr"
	"github.com/sourcedesk/dealflow/internal/extract/webpage"
	"github.com/sourcedesk/dealflow/internal/linkedin"
	"github.com/sourcedesk/dealflow/internal/llm"
	"github.com/sourcedesk/dealflow/internal/prompt"
	"github.com/sourcedesk/dealflow/internal/source"
	"github.com/sourcedesk/dealflow/internal/util"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "analyze":
		os.Exit(runAnalyze(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runAnalyze(ctx context.Context, args []string) int {
	llmEnv, err := loadLLMConfigFromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}
	acqEnv, err := loadAcquireConfigFromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var messagePath string
	var outputPath string
	var promptsPath string
	var maxRetries int
	var requestTimeout time.Duration
	var rateLimitRPS float64
	var geminiModel string
	var geminiBaseURL string
	var headless bool
	var scratchDir string
	var withLinkedIn bool
	var attachments attachmentList

	fs.StringVar(&messagePath, "message", "", "Message text file path, or '-' for stdin")
	fs.StringVar(&outputPath, "output", "", "Output JSON-lines file path (default: stdout)")
	fs.StringVar(&promptsPath, "prompts", "", "Prompt templates YAML path (default: built-in templates)")
	fs.IntVar(&maxRetries, "max-retries", llmEnv.MaxRetries, "Max retries per model call for transient failures (env: MAX_RETRIES)")
	fs.DurationVar(&requestTimeout, "request-timeout", llmEnv.RequestTimeout, "Per-call request timeout (env: REQUEST_TIMEOUT)")
	fs.Float64Var(&rateLimitRPS, "rate-limit-rps", llmEnv.RateLimitRPS, "Global model request rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fs.StringVar(&geminiModel, "gemini-model", llmEnv.Model, "Gemini model name (env: GEMINI_MODEL)")
	fs.StringVar(&geminiBaseURL, "gemini-base-url", llmEnv.BaseURL, "Gemini API base URL override (env: GEMINI_BASE_URL)")
	fs.BoolVar(&headless, "headless", acqEnv.Headless, "Run the browser headless (env: HEADLESS)")
	fs.StringVar(&scratchDir, "scratch-dir", acqEnv.ScratchDir, "Directory for debug snapshots and temp images (env: SCRATCH_DIR)")
	fs.BoolVar(&withLinkedIn, "linkedin", acqEnv.LinkedInEnabled, "Enable the identity-verified profile lookup (env: LINKEDIN_USERNAME/_PASSWORD)")
	fs.Var(&attachments, "attachment", "Attachment file path, repeatable")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if messagePath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "analyze requires --message (path or '-')")
		return 2
	}

	messageText, err := readMessage(messagePath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "read message: %s\n", err)
		return 2
	}

	prompts := prompt.Defaults()
	if promptsPath != "" {
		loaded, err := prompt.Load(promptsPath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "prompts error: %s\n", err)
			return 2
		}
		prompts = prompt.Merge(loaded)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	client, err := llm.New(ctx, llm.Config{
		APIKey:         llmEnv.APIKey,
		Model:          geminiModel,
		BaseURL:        geminiBaseURL,
		RequestTimeout: requestTimeout,
		MaxRetries:     maxRetries,
		RateLimitRPS:   rateLimitRPS,
		Logger:         logger,
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "gemini config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	engine := ocr.New(ocr.Config{
		Binary:     acqEnv.OCRBinary,
		Languages:  acqEnv.OCRLanguages,
		ScratchDir: scratchDir,
		Logger:     logger,
	})
	parser := localfile.NewParser(engine, localfile.Config{
		RasterBin:  acqEnv.RasterBinary,
		ScratchDir: scratchDir,
		Logger:     logger,
	})
	gated := browser.NewGatedFetcher(engine, browser.GatedConfig{
		Email:      acqEnv.GateEmail,
		ScratchDir: scratchDir,
		Headless:   headless,
		Logger:     logger,
	})
	cloud := drive.NewFetcher(parser, nil, logger)
	web := webpage.New(engine, webpage.Config{Headless: headless, Logger: logger})

	pipeline := enrich.NewPipeline(client, client, prompts, logger)
	if withLinkedIn {
		if acqEnv.LinkedInUser == "" || acqEnv.LinkedInPass == "" {
			_, _ = fmt.Fprintln(os.Stderr, "linkedin lookup requires LINKEDIN_USERNAME and LINKEDIN_PASSWORD")
			return 2
		}
		pipeline.WithProfileFinder(linkedin.New(linkedin.Config{
			Username:   acqEnv.LinkedInUser,
			Password:   acqEnv.LinkedInPass,
			CookiePath: acqEnv.LinkedInCookies,
			Headless:   headless,
			Logger:     logger,
		}))
	}

	out := io.Writer(os.Stdout)
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "open output: %s\n", err)
			return 2
		}
		defer func() {
			_ = f.Close()
		}()
		out = f
	}

	analyzer := app.NewAnalyzer(gated, parser, cloud, web,
		deck.NewSummarizer(client, prompts, logger), pipeline, newJSONSink(out), logger)

	msg := source.Message{Text: messageText}
	for _, path := range attachments {
		msg.Attachments = append(msg.Attachments, source.Attachment{
			Name: filepath.Base(path),
			Path: path,
		})
	}

	if _, _, err := analyzer.Analyze(ctx, msg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "analyze failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func readMessage(path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// attachmentList collects repeated --attachment flags.
type attachmentList []string

func (a *attachmentList) String() string { return strings.Join(*a, ",") }

func (a *attachmentList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("empty attachment path")
	}
	*a = append(*a, v)
	return nil
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `dealflow: deal-sourcing content acquisition and enrichment pipeline

Usage:
  dealflow <command> [flags]

Commands:
  analyze  Analyze one inbound message (deck links, attachments, plain text)

Examples:
  dealflow analyze --message intro.txt --attachment deck.pdf --output deals.jsonl
  cat intro.txt | dealflow analyze --message -

Environment (Gemini):
  GEMINI_API_KEY    Gemini API key (required)
  GEMINI_MODEL      Gemini model name (required)
  GEMINI_BASE_URL   Optional base URL override (proxies/testing)

Environment (acquisition):
  GATE_EMAIL        Email typed into document access gates
  SCRATCH_DIR       Directory for debug snapshots and temp images
  HEADLESS          Run the browser headless (default true)
  OCR_BINARY        OCR executable (default tesseract)
  OCR_LANGUAGES     OCR language list (default eng)
  RASTER_BINARY     PDF rasterizer executable (default pdftoppm)

Environment (profile lookup):
  LINKEDIN_USERNAME     Login for the verified profile lookup
  LINKEDIN_PASSWORD     Password for the verified profile lookup
  LINKEDIN_COOKIE_FILE  Cookie persistence path

`)
}

type llmEnvConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64
}

func loadLLMConfigFromEnv() (llmEnvConfig, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return llmEnvConfig{}, fmt.Errorf("GEMINI_API_KEY is required")
	}
	maxRetries, err := envInt("MAX_RETRIES", 3)
	if err != nil {
		return llmEnvConfig{}, err
	}
	requestTimeout, err := envDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return llmEnvConfig{}, err
	}
	rateLimitRPS, err := envFloat("RATE_LIMIT_RPS", 0)
	if err != nil {
		return llmEnvConfig{}, err
	}
	return llmEnvConfig{
		APIKey:         apiKey,
		Model:          strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		BaseURL:        strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		MaxRetries:     maxRetries,
		RequestTimeout: requestTimeout,
		RateLimitRPS:   rateLimitRPS,
	}, nil
}

type acquireEnvConfig struct {
	GateEmail       string
	ScratchDir      string
	Headless        bool
	OCRBinary       string
	OCRLanguages    string
	RasterBinary    string
	LinkedInUser    string
	LinkedInPass    string
	LinkedInCookies string
	LinkedInEnabled bool
}

func loadAcquireConfigFromEnv() (acquireEnvConfig, error) {
	headless, err := envBoolDefault("HEADLESS", true)
	if err != nil {
		return acquireEnvConfig{}, err
	}
	user := strings.TrimSpace(os.Getenv("LINKEDIN_USERNAME"))
	pass := strings.TrimSpace(os.Getenv("LINKEDIN_PASSWORD"))
	return acquireEnvConfig{
		GateEmail:       strings.TrimSpace(os.Getenv("GATE_EMAIL")),
		ScratchDir:      strings.TrimSpace(os.Getenv("SCRATCH_DIR")),
		Headless:        headless,
		OCRBinary:       strings.TrimSpace(os.Getenv("OCR_BINARY")),
		OCRLanguages:    strings.TrimSpace(os.Getenv("OCR_LANGUAGES")),
		RasterBinary:    strings.TrimSpace(os.Getenv("RASTER_BINARY")),
		LinkedInUser:    user,
		LinkedInPass:    pass,
		LinkedInCookies: strings.TrimSpace(os.Getenv("LINKEDIN_COOKIE_FILE")),
		LinkedInEnabled: user != "" && pass != "",
	}, nil
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBoolDefault(varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"scenegen/internal/domain"
	"scenegen/internal/infra"
	"scenegen/internal/pipeline"
	"scenegen/internal/providers/xai"
	"scenegen/internal/storage"
)

const (
	defaultOutputDir = "output_images"
	defaultOutputCSV = "generated_scenes.csv"
)

type options struct {
	InputFile   string
	Script      string
	ScriptFile  string
	Style       string
	APIKey      string
	OutputDir   string
	Template    string
	ImageFormat string
	Retry       int
	OutputCSV   string
	Verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "scenegen",
		Short: "Turn a script or scene file into one generated image per scene",
		Long: `scenegen extracts scenes from a screenplay with a language model, or loads them
from a CSV/JSON scene file, and renders one image per scene into the output directory.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.InputFile, "input-file", "", "CSV or JSON scene file")
	f.StringVar(&opts.Script, "script", "", "script text to split into scenes")
	f.StringVar(&opts.ScriptFile, "script-file", "", "file holding the script text ('-' reads stdin)")
	f.StringVar(&opts.Style, "style", "", "visual style applied to scenes without their own")
	f.StringVar(&opts.APIKey, "api-key", "", "xAI API key (defaults to XAI_API_KEY)")
	f.StringVar(&opts.OutputDir, "output-dir", defaultOutputDir, "directory for generated images")
	f.StringVar(&opts.Template, "template", "", "prompt template text, or @path to read it from a file")
	f.StringVar(&opts.ImageFormat, "image-format", "base64", "image response format: base64 or url")
	f.IntVar(&opts.Retry, "retry", 3, "attempts per image before giving up")
	f.StringVar(&opts.OutputCSV, "output-csv", defaultOutputCSV, "where script mode writes the extracted scenes")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newStylesCmd(), newKeyCmd())
	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, opts *options) error {
	req, err := buildRequest(opts, os.Stdin)
	if err != nil {
		return err
	}
	tmpl, err := readTemplate(opts.Template)
	if err != nil {
		return err
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	logger := infra.NewCLILogger(opts.Verbose)

	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		apiKey = cfg.XAIAPIKey
	}
	store, err := storage.NewFileStore(opts.OutputDir)
	if err != nil {
		return err
	}
	driver, err := pipeline.NewDriver(pipeline.Options{
		Clients: xai.NewFactory(xai.Options{
			APIKey:        apiKey,
			BaseURL:       cfg.XAIBaseURL,
			ChatModel:     cfg.ChatModel,
			ImageModel:    cfg.ImageModel,
			Timeout:       cfg.HTTPClientTimeout,
			RatePerMinute: cfg.ImageRatePerMinute,
			Logger:        &logger,
		}),
		Store:       store,
		Template:    tmpl,
		ImageFormat: opts.ImageFormat,
		MaxAttempts: opts.Retry,
		BackoffUnit: cfg.BackoffUnit,
		ScenePause:  cfg.ScenePause,
		Logger:      &logger,
	})
	if err != nil {
		return err
	}

	res, err := driver.Run(logger.WithContext(ctx), req, &progressPrinter{out: out})
	if err != nil {
		return err
	}
	if req.SnapshotPath != "" {
		fmt.Fprintf(out, "Scenes saved to %s\n", req.SnapshotPath)
	}
	fmt.Fprintf(out, "%d images saved to %s\n", len(res.Images), res.OutputDir)
	return nil
}

// buildRequest turns flags into a pipeline request. Exactly one scene
// source must be given.
func buildRequest(opts *options, stdin io.Reader) (domain.GenerationRequest, error) {
	sources := 0
	for _, v := range []string{opts.InputFile, opts.Script, opts.ScriptFile} {
		if strings.TrimSpace(v) != "" {
			sources++
		}
	}
	if sources != 1 {
		return domain.GenerationRequest{}, fmt.Errorf("%w: pass exactly one of --input-file, --script or --script-file", domain.ErrConfiguration)
	}
	if opts.Retry < 1 {
		return domain.GenerationRequest{}, fmt.Errorf("%w: --retry must be at least 1", domain.ErrConfiguration)
	}

	req := domain.GenerationRequest{
		APIKey:      strings.TrimSpace(opts.APIKey),
		Style:       opts.Style,
		ImageFormat: opts.ImageFormat,
		MaxAttempts: opts.Retry,
	}
	switch {
	case opts.InputFile != "":
		req.FilePath = opts.InputFile
	default:
		text := opts.Script
		if opts.ScriptFile != "" {
			raw, err := readScriptFile(opts.ScriptFile, stdin)
			if err != nil {
				return domain.GenerationRequest{}, err
			}
			text = raw
		}
		if strings.TrimSpace(text) == "" {
			return domain.GenerationRequest{}, fmt.Errorf("%w: script is empty", domain.ErrConfiguration)
		}
		req.Script = text
		req.SnapshotPath = opts.OutputCSV
	}
	return req, req.Validate()
}

func readScriptFile(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read script from stdin: %w", err)
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read script file: %w", err)
	}
	return string(raw), nil
}

func readTemplate(value string) (string, error) {
	if !strings.HasPrefix(value, "@") {
		return value, nil
	}
	raw, err := os.ReadFile(strings.TrimPrefix(value, "@"))
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(raw), nil
}

// progressPrinter echoes pipeline progress to the terminal.
type progressPrinter struct {
	out   io.Writer
	total int
}

func (p *progressPrinter) Parsing(context.Context) {
	fmt.Fprintln(p.out, "Extracting scenes from script...")
}

func (p *progressPrinter) Generating(_ context.Context, scenes []domain.Scene) {
	p.total = len(scenes)
	fmt.Fprintf(p.out, "Generating %d images\n", p.total)
}

func (p *progressPrinter) SceneStarted(_ context.Context, index int, scene domain.Scene) {
	fmt.Fprintf(p.out, "[%d/%d] scene %d: %s\n", index+1, p.total, scene.SceneNumber, scene.ScriptLine)
}

func (p *progressPrinter) ImageSaved(_ context.Context, filename string) {
	fmt.Fprintf(p.out, "  saved %s\n", filename)
}

var _ pipeline.Reporter = (*progressPrinter)(nil)

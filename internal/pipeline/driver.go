// Package pipeline runs the script or file to scenes to images sequence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"scenegen/internal/domain"
	"scenegen/internal/prompt"
	"scenegen/internal/providers/image"
	"scenegen/internal/scenes"
)

// DefaultScenePause is the courtesy delay between two image requests.
const DefaultScenePause = 200 * time.Millisecond

// ScriptParser derives scenes from free text.
type ScriptParser interface {
	Parse(ctx context.Context, script, style string) ([]domain.Scene, error)
}

// ImageGenerator renders one prompt into image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, mode image.Mode, policy image.RetryPolicy) (image.Result, error)
}

// ClientFactory builds the model clients for one API credential.
type ClientFactory interface {
	Clients(apiKey string) (ScriptParser, ImageGenerator, error)
}

// ImageStore persists generated images.
type ImageStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	BasePath() string
}

// Result is the outcome of a successful run.
type Result struct {
	Scenes    []domain.Scene `json:"scenes"`
	Images    []string       `json:"images"`
	OutputDir string         `json:"output_dir"`
}

// Options configures a Driver. Zero values fall back to defaults.
type Options struct {
	Clients     ClientFactory
	Store       ImageStore
	Template    string
	ImageFormat string
	MaxAttempts int
	BackoffUnit time.Duration
	ScenePause  time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
	Logger      *zerolog.Logger
}

// Driver sequences scene extraction, prompt rendering and image generation.
type Driver struct {
	clients     ClientFactory
	store       ImageStore
	template    string
	imageFormat string
	maxAttempts int
	backoffUnit time.Duration
	scenePause  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      zerolog.Logger
}

// NewDriver validates opts and returns a Driver.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Clients == nil {
		return nil, errors.New("pipeline: client factory is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: image store is required")
	}
	d := &Driver{
		clients:     opts.Clients,
		store:       opts.Store,
		template:    coalesce(opts.Template, prompt.DefaultTemplate),
		imageFormat: coalesce(opts.ImageFormat, string(image.ModeInline)),
		maxAttempts: opts.MaxAttempts,
		backoffUnit: opts.BackoffUnit,
		scenePause:  opts.ScenePause,
		sleep:       opts.Sleep,
		logger:      zerolog.Nop(),
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = image.DefaultMaxAttempts
	}
	if d.backoffUnit <= 0 {
		d.backoffUnit = time.Second
	}
	if d.scenePause < 0 {
		d.scenePause = 0
	}
	if d.sleep == nil {
		d.sleep = sleepContext
	}
	if opts.Logger != nil {
		d.logger = *opts.Logger
	}
	if err := prompt.Validate(d.template); err != nil {
		return nil, err
	}
	return d, nil
}

// Run executes one job end to end. The first scene that fails aborts the
// run; images already written stay on disk.
func (d *Driver) Run(ctx context.Context, req domain.GenerationRequest, reporter Reporter) (Result, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	template := coalesce(req.Template, d.template)
	if err := prompt.Validate(template); err != nil {
		return Result{}, err
	}
	mode, err := image.ParseMode(coalesce(req.ImageFormat, d.imageFormat))
	if err != nil {
		return Result{}, err
	}
	policy := image.RetryPolicy{MaxAttempts: d.maxAttempts, Unit: d.backoffUnit}
	if req.MaxAttempts > 0 {
		policy.MaxAttempts = req.MaxAttempts
	}
	parser, generator, err := d.clients.Clients(req.APIKey)
	if err != nil {
		return Result{}, err
	}

	log := d.log(ctx)
	reporter.Parsing(ctx)
	list, err := d.resolveScenes(ctx, req, parser)
	if err != nil {
		return Result{}, err
	}
	reporter.Generating(ctx, list)
	log.Info().Int("scenes", len(list)).Msg("pipeline: generating images")

	result := Result{Scenes: list, Images: []string{}, OutputDir: d.store.BasePath()}
	for i, sc := range list {
		reporter.SceneStarted(ctx, i, sc)
		rendered, err := prompt.Render(sc, template)
		if err != nil {
			return result, err
		}
		log.Info().Int("scene_number", sc.SceneNumber).Str("prompt", truncate(rendered, 80)).Msg("pipeline: generating scene")
		generated, err := generator.Generate(ctx, rendered, mode, policy)
		if err != nil {
			return result, fmt.Errorf("scene %d: %w", sc.SceneNumber, err)
		}
		key, err := d.store.Write(ctx, sc.ImageFilename(), generated.Data)
		if err != nil {
			return result, fmt.Errorf("scene %d: %w", sc.SceneNumber, err)
		}
		result.Images = append(result.Images, key)
		reporter.ImageSaved(ctx, key)
		log.Info().Int("scene_number", sc.SceneNumber).Str("file", key).Int("attempts", generated.Attempts).Msg("pipeline: saved image")

		if i < len(list)-1 {
			if err := d.sleep(ctx, d.scenePause); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func (d *Driver) resolveScenes(ctx context.Context, req domain.GenerationRequest, parser ScriptParser) ([]domain.Scene, error) {
	style := strings.TrimSpace(req.Style)
	if strings.TrimSpace(req.Script) != "" {
		if parser == nil {
			return nil, fmt.Errorf("%w: script parser not configured", domain.ErrConfiguration)
		}
		parsed, err := parser.Parse(ctx, req.Script, style)
		if err != nil {
			return nil, err
		}
		list := domain.WithStyle(parsed, domain.NormalizeStyle(style))
		sort.SliceStable(list, func(i, j int) bool { return list[i].SceneNumber < list[j].SceneNumber })
		if err := scenes.CheckUnique(list); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrModelResponse, err)
		}
		if req.SnapshotPath != "" {
			if err := scenes.WriteSnapshotFile(req.SnapshotPath, list); err != nil {
				return nil, err
			}
			d.log(ctx).Info().Str("path", req.SnapshotPath).Msg("pipeline: wrote scene snapshot")
		}
		return list, nil
	}

	list, err := scenes.Load(req.FilePath)
	if err != nil {
		return nil, err
	}
	if style != "" {
		for i := range list {
			if list[i].Style == "" {
				list[i].Style = style
			}
		}
	}
	return list, nil
}

// log prefers a logger carried by ctx so job fields propagate.
func (d *Driver) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &d.logger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

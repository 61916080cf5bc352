package pipeline

import (
	"context"

	"scenegen/internal/domain"
)

// Reporter observes the progress of a run.
type Reporter interface {
	Parsing(ctx context.Context)
	Generating(ctx context.Context, scenes []domain.Scene)
	SceneStarted(ctx context.Context, index int, scene domain.Scene)
	ImageSaved(ctx context.Context, filename string)
}

// NopReporter ignores all progress.
type NopReporter struct{}

func (NopReporter) Parsing(context.Context) {}
func (NopReporter) Generating(context.Context, []domain.Scene) {}
func (NopReporter) SceneStarted(context.Context, int, domain.Scene) {}
func (NopReporter) ImageSaved(context.Context, string) {}

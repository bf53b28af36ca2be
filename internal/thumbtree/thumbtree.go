// Package thumbtree runs one reconciliation of a destination tree against a
// source tree and scopes the resources it needs to that run.
package thumbtree

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/openmined/thumbtree/internal/classify"
	"github.com/openmined/thumbtree/internal/config"
	"github.com/openmined/thumbtree/internal/errors"
	"github.com/openmined/thumbtree/internal/pairing"
	"github.com/openmined/thumbtree/internal/reconcile"
	"github.com/openmined/thumbtree/internal/render"
)

type runOptions struct {
	runner render.Runner
	logger *slog.Logger
}

type Option func(*runOptions)

// WithRunner makes renders go through runner instead of real processes.
func WithRunner(runner render.Runner) Option {
	return func(o *runOptions) {
		o.runner = runner
	}
}

// WithLogger sets the logger of the run. The default is slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runOptions) {
		o.logger = logger
	}
}

// Run validates cfg, prepares the destination and mirrors cfg.Source into
// cfg.Dest. The returned stats are valid even when err is not nil and
// describe the work done up to the failure.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) (stats reconcile.Stats, err error) {
	ro := runOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&ro)
	}

	if err := cfg.Validate(); err != nil {
		return stats, err
	}
	if err := checkSource(cfg.Source); err != nil {
		return stats, err
	}
	if err := prepareDest(cfg.Dest, cfg.DryRun, ro.logger); err != nil {
		return stats, err
	}

	rules, err := classify.LoadRules(cfg.Source, cfg.IgnorePatterns)
	if err != nil {
		return stats, err
	}
	classifier := classify.New(cfg.Extensions).WithRules(rules)

	dispatcher := render.NewDispatcher(cfg.RenderOptions(), ro.runner)
	defer func() {
		if closeErr := dispatcher.Close(); closeErr != nil {
			err = stderrors.Join(err, closeErr)
		}
	}()

	logger := ro.logger.With("run", uuid.NewString())
	rec := reconcile.New(classifier, dispatcher, pairing.PP3Sidecar{}, reconcile.Options{
		Workers: cfg.Workers,
		DryRun:  cfg.DryRun,
	}, logger)

	start := time.Now()
	logger.Info("thumbtree run start", "source", cfg.Source, "dest", cfg.Dest, "workers", cfg.Workers, "dryRun", cfg.DryRun)

	err = rec.Reconcile(ctx, cfg.Source, cfg.Dest)
	stats = rec.Stats()
	if err != nil {
		logger.Error("thumbtree run failed", "error", err, "took", time.Since(start))
		return stats, err
	}

	logger.Info("thumbtree run done", "mutations", stats.Mutations(), "took", time.Since(start))
	return stats, nil
}

func checkSource(source string) error {
	info, err := os.Stat(source)
	if err != nil {
		return errors.Filesystem("stat", source, err)
	}
	if !info.IsDir() {
		return errors.Filesystem("stat", source, errors.ErrNotDirectory)
	}
	return nil
}

func prepareDest(dest string, dryRun bool, logger *slog.Logger) error {
	info, err := os.Stat(dest)
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return errors.Filesystem("stat", dest, errors.ErrNotDirectory)
	case !os.IsNotExist(err):
		return errors.Filesystem("stat", dest, err)
	}

	if dryRun {
		logger.Info("thumbtree dest does not exist, dry run leaves it absent", "dest", dest)
		return nil
	}
	if err := os.Mkdir(dest, 0o755); err != nil {
		return errors.Filesystem("mkdir", dest, err)
	}
	return nil
}

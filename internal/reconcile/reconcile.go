// Package reconcile makes a destination directory tree mirror a source tree,
// rendering media files into reduced versions and deleting whatever no
// longer has a source counterpart.
package reconcile

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/openmined/thumbtree/internal/classify"
	"github.com/openmined/thumbtree/internal/errors"
	"github.com/openmined/thumbtree/internal/pairing"
	"github.com/openmined/thumbtree/internal/render"
	"github.com/openmined/thumbtree/internal/snapshot"
	"github.com/openmined/thumbtree/internal/utils"
)

type Options struct {
	// Workers bounds the renders running at once within one directory.
	// Values below 2 render sequentially.
	Workers int
	// DryRun logs every decision without touching the destination
	DryRun bool
}

// Reconciler walks a source tree depth-first and applies the per-entry
// decisions to the destination. One Reconciler serves one run.
type Reconciler struct {
	classifier *classify.Classifier
	renderer   render.Renderer
	sidecar    pairing.Sidecar
	opts       Options
	logger     *slog.Logger

	sourceRoot string
	destRoot   string
	stats      statsRecorder
}

// New returns a Reconciler. A nil sidecar disables discard markers and a nil
// logger uses slog.Default.
func New(classifier *classify.Classifier, renderer render.Renderer, sidecar pairing.Sidecar, opts Options, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		classifier: classifier,
		renderer:   renderer,
		sidecar:    sidecar,
		opts:       opts,
		logger:     logger,
	}
}

// Stats returns the counters accumulated so far
func (r *Reconciler) Stats() Stats {
	return r.stats.snapshot()
}

// Reconcile mirrors the directory source into the existing directory dest.
// The first error aborts the walk. A dry run also accepts a dest that does
// not exist yet.
func (r *Reconciler) Reconcile(ctx context.Context, source, dest string) error {
	r.sourceRoot = source
	r.destRoot = dest
	fresh := r.opts.DryRun && !utils.DirExists(dest)
	return r.reconcileDir(ctx, source, dest, fresh)
}

// renderJob is a planned render of one regular file.
type renderJob struct {
	class   classify.Class
	source  string
	target  string
	relPath string
	// replace is the destination entry removed right before rendering
	replace *snapshot.Entry
	update  bool
	// staleTemp is a leftover temporary output of an interrupted render
	staleTemp *snapshot.Entry
}

// dirPair is a source subdirectory and its destination counterpart.
type dirPair struct {
	source string
	dest   string
	fresh  bool
}

// dirState is the bookkeeping of one directory level.
type dirState struct {
	source  string
	dest    string
	dstSnap snapshot.Snapshot
	pairing *pairing.Directory
	// claimed maps destination names to the source entry that owns them
	claimed map[string]string
}

func (r *Reconciler) reconcileDir(ctx context.Context, source, dest string, fresh bool) error {
	srcSnap, err := snapshot.Read(source)
	if err != nil {
		return err
	}

	// a directory created during this run has nothing to compare against
	dstSnap := snapshot.Snapshot{}
	if !fresh {
		if dstSnap, err = snapshot.Read(dest); err != nil {
			return err
		}
	}

	st := &dirState{
		source:  source,
		dest:    dest,
		dstSnap: dstSnap,
		pairing: pairing.ForDirectory(source, srcSnap.RegularFiles(), r.sidecar),
		claimed: make(map[string]string),
	}

	var (
		subdirs []dirPair
		jobs    []renderJob
		raws    []snapshot.Entry
	)

	for _, name := range srcSnap.Names() {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := srcSnap[name]

		switch entry.Kind {
		case snapshot.Directory:
			sub, err := r.syncDirectory(st, entry)
			if err != nil {
				return err
			}
			if sub != nil {
				subdirs = append(subdirs, *sub)
			}

		case snapshot.Symlink:
			if err := r.syncSymlink(st, entry); err != nil {
				return err
			}

		case snapshot.RegularFile:
			class := r.classifier.Classify(r.relPath(filepath.Join(source, name)))
			if class == classify.Unknown {
				return errors.Configuration(filepath.Join(source, name), "unknown file type %q", filepath.Ext(name))
			}
			// RAW renders take a derived name, so plain entries claim theirs first
			if class == classify.Raw {
				raws = append(raws, entry)
				continue
			}
			if job := r.planFile(st, entry, class, name); job != nil {
				jobs = append(jobs, *job)
			}

		default:
			// the destination entry of that name is left alone as well
			st.claimed[name] = name
			st.dstSnap.Pop(name)
			r.logger.Warn("reconcile", "op", OpSkipped, "reason", "unsupported file type", "path", r.relPath(filepath.Join(source, name)))
			r.stats.add(func(s *Stats) { s.Skipped++ })
		}
	}

	for _, entry := range raws {
		job, err := r.planRaw(st, entry)
		if err != nil {
			return err
		}
		if job != nil {
			jobs = append(jobs, *job)
		}
	}

	if err := r.runJobs(ctx, jobs); err != nil {
		return err
	}

	for _, sub := range subdirs {
		if err := r.reconcileDir(ctx, sub.source, sub.dest, sub.fresh); err != nil {
			return err
		}
	}

	// whatever was not claimed has no source counterpart
	for _, name := range dstSnap.Names() {
		orphan := dstSnap[name]
		if err := r.remove(orphan, filepath.Join(dest, name), OpDelete); err != nil {
			return err
		}
	}
	return nil
}

// claim reserves a destination name for a source entry. It reports false
// when another entry of the same directory already owns the name.
func (r *Reconciler) claim(st *dirState, target, sourceName string) bool {
	if owner, ok := st.claimed[target]; ok {
		r.logger.Warn("reconcile", "op", OpSkipped, "reason", "target already produced by "+owner, "path", r.relPath(filepath.Join(st.source, sourceName)), "target", target)
		r.stats.add(func(s *Stats) { s.Skipped++ })
		return false
	}
	st.claimed[target] = sourceName
	return true
}

func (r *Reconciler) syncDirectory(st *dirState, entry snapshot.Entry) (*dirPair, error) {
	if !r.claim(st, entry.Name, entry.Name) {
		return nil, nil
	}
	srcPath := filepath.Join(st.source, entry.Name)
	dstPath := filepath.Join(st.dest, entry.Name)

	existing, exists := st.dstSnap.Pop(entry.Name)
	if exists && existing.Kind == snapshot.Directory {
		return &dirPair{source: srcPath, dest: dstPath}, nil
	}
	if exists {
		if err := r.remove(existing, dstPath, OpReplace); err != nil {
			return nil, err
		}
	}

	r.logger.Info("reconcile", "op", OpCreate, "kind", snapshot.Directory, "path", r.relPath(srcPath))
	if !r.opts.DryRun {
		if err := os.Mkdir(dstPath, 0o755); err != nil {
			return nil, errors.Filesystem("mkdir", dstPath, err)
		}
	}
	r.stats.add(func(s *Stats) { s.Directories++ })
	return &dirPair{source: srcPath, dest: dstPath, fresh: true}, nil
}

func (r *Reconciler) syncSymlink(st *dirState, entry snapshot.Entry) error {
	if !r.claim(st, entry.Name, entry.Name) {
		return nil
	}
	srcPath := filepath.Join(st.source, entry.Name)
	dstPath := filepath.Join(st.dest, entry.Name)

	linkTarget, err := os.Readlink(srcPath)
	if err != nil {
		return errors.Filesystem("readlink", srcPath, err)
	}
	if filepath.IsAbs(linkTarget) {
		r.logger.Warn("reconcile symlink to absolute path will not resolve in the mirror", "path", r.relPath(srcPath), "target", linkTarget)
	}

	op := OpCreate
	existing, exists := st.dstSnap.Pop(entry.Name)
	switch {
	case exists && existing.Kind == snapshot.Symlink:
		current, err := os.Readlink(dstPath)
		if err != nil {
			return errors.Filesystem("readlink", dstPath, err)
		}
		if current == linkTarget {
			r.stats.add(func(s *Stats) { s.Unchanged++ })
			return nil
		}
		op = OpUpdate
		r.logger.Info("reconcile", "op", op, "kind", snapshot.Symlink, "path", r.relPath(srcPath), "target", linkTarget, "previous", current)
		if !r.opts.DryRun {
			if err := os.Remove(dstPath); err != nil {
				return errors.Filesystem("unlink", dstPath, err)
			}
		}
	case exists:
		if err := r.remove(existing, dstPath, OpReplace); err != nil {
			return err
		}
	}

	if op == OpCreate {
		r.logger.Info("reconcile", "op", op, "kind", snapshot.Symlink, "path", r.relPath(srcPath), "target", linkTarget)
	}
	if !r.opts.DryRun {
		if err := os.Symlink(linkTarget, dstPath); err != nil {
			return errors.Filesystem("symlink", dstPath, err)
		}
	}
	r.stats.add(func(s *Stats) { s.Symlinks++ })
	return nil
}

// planRaw applies the pairing rules before a RAW file gets a target name.
func (r *Reconciler) planRaw(st *dirState, entry snapshot.Entry) (*renderJob, error) {
	verdict, err := st.pairing.Check(entry.Name)
	if err != nil {
		return nil, err
	}
	if verdict != pairing.Keep {
		r.logger.Debug("reconcile", "op", OpSuppress, "reason", verdict, "path", r.relPath(filepath.Join(st.source, entry.Name)))
		r.stats.add(func(s *Stats) { s.Suppressed++ })
		return nil, nil
	}
	return r.planFile(st, entry, classify.Raw, pairing.CompanionName(entry.Name)), nil
}

// planFile compares a regular source file with the destination entry named
// targetName and returns the render it needs, if any.
func (r *Reconciler) planFile(st *dirState, entry snapshot.Entry, class classify.Class, targetName string) *renderJob {
	if !r.claim(st, targetName, entry.Name) {
		return nil
	}

	job := &renderJob{
		class:   class,
		source:  filepath.Join(st.source, entry.Name),
		target:  filepath.Join(st.dest, targetName),
		relPath: r.relPath(filepath.Join(st.source, entry.Name)),
	}

	existing, exists := st.dstSnap.Pop(targetName)
	switch {
	case !exists:
	case existing.Kind != snapshot.RegularFile:
		job.replace = &existing
	case !entry.ModTime.Before(existing.ModTime):
		job.replace = &existing
		job.update = true
	default:
		r.stats.add(func(s *Stats) { s.Unchanged++ })
		return nil
	}

	// the render reuses this name, so it must not reach the orphan purge
	if stale, ok := st.dstSnap.Pop(filepath.Base(render.TempName(job.target))); ok {
		job.staleTemp = &stale
	}
	return job
}

func (r *Reconciler) runJobs(ctx context.Context, jobs []renderJob) error {
	if r.opts.Workers < 2 || len(jobs) < 2 {
		for _, job := range jobs {
			if err := r.runJob(ctx, job); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.opts.Workers)
	for _, job := range jobs {
		job := job
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			return r.runJob(egCtx, job)
		})
	}
	return eg.Wait()
}

func (r *Reconciler) runJob(ctx context.Context, job renderJob) error {
	if job.staleTemp != nil {
		if err := r.remove(*job.staleTemp, render.TempName(job.target), OpDelete); err != nil {
			return err
		}
	}
	if job.replace != nil && !job.update {
		if err := r.remove(*job.replace, job.target, OpReplace); err != nil {
			return err
		}
	}

	op := OpCreate
	if job.update {
		op = OpUpdate
	}
	r.logger.Info("reconcile", "op", op, "kind", snapshot.RegularFile, "class", job.class, "path", job.relPath)
	if r.opts.DryRun {
		r.countRender(job, 0)
		return nil
	}

	if job.update {
		if err := os.Remove(job.target); err != nil {
			return errors.Filesystem("unlink", job.target, err)
		}
	}
	if err := r.renderer.Render(ctx, job.class, job.source, job.target); err != nil {
		return err
	}
	r.countRender(job, utils.FileSize(job.target))
	return nil
}

func (r *Reconciler) countRender(job renderJob, size int64) {
	r.stats.add(func(s *Stats) {
		if job.update {
			s.Updated++
		} else {
			s.Rendered++
		}
		s.BytesWritten += size
	})
}

// remove logs and applies the Removal Policy to a destination entry.
func (r *Reconciler) remove(entry snapshot.Entry, path string, op OpType) error {
	r.logger.Info("reconcile", "op", op, "kind", entry.Kind, "path", r.destRel(path))
	if !r.opts.DryRun {
		if err := Remove(entry.Kind, path); err != nil {
			return err
		}
	}
	r.stats.add(func(s *Stats) { s.Removed++ })
	return nil
}

func (r *Reconciler) relPath(path string) string {
	return relTo(r.sourceRoot, path)
}

func (r *Reconciler) destRel(path string) string {
	return relTo(r.destRoot, path)
}

func relTo(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}

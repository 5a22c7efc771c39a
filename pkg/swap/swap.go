package swap

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/molt/pkg/atomicfile"
	"github.com/cuemby/molt/pkg/errdefs"
	"github.com/cuemby/molt/pkg/log"
	"github.com/cuemby/molt/pkg/metrics"
	"github.com/cuemby/molt/pkg/types"
)

// Orchestrator promotes staged artifacts into the live tree with
// all-or-nothing semantics. Construction runs boot recovery, so by the
// time an Orchestrator exists the stage and backup directories are empty
// and the live tree reflects either the previous version or a completed
// swap.
type Orchestrator struct {
	root      string
	stageDir  string
	backupDir string
	attemptID string
	logger    zerolog.Logger
}

// New creates an Orchestrator rooted at root and runs boot recovery
func New(root, stageDir, backupDir string) (*Orchestrator, error) {
	o := &Orchestrator{
		root:      root,
		stageDir:  filepath.Join(root, stageDir),
		backupDir: filepath.Join(root, backupDir),
		logger:    log.WithComponent("swap"),
	}
	for _, dir := range []string{o.stageDir, o.backupDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errdefs.Wrap(errdefs.ErrIOFault, err)
		}
	}
	o.Recover()
	return o, nil
}

// SetAttemptID tags error records with the running attempt
func (o *Orchestrator) SetAttemptID(id string) {
	o.attemptID = id
}

// StageDir returns the absolute staging directory
func (o *Orchestrator) StageDir() string { return o.stageDir }

// BackupDir returns the absolute backup directory
func (o *Orchestrator) BackupDir() string { return o.backupDir }

// Recover handles state left by a crash. A non-empty backup directory
// means a swap was interrupted before finalization: every backed-up file
// is restored over its live path. Stray .tmp files and leftover staging
// are removed. Restoration errors are recorded but do not stop the
// remaining entries.
func (o *Orchestrator) Recover() {
	backups := listFiles(o.backupDir)
	if len(backups) > 0 {
		o.logger.Warn().Int("files", len(backups)).Msg("Interrupted swap detected, restoring from backup")
		var stepErrs []string
		for _, rel := range backups {
			src := filepath.Join(o.backupDir, rel)
			dst := filepath.Join(o.root, rel)
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				stepErrs = append(stepErrs, rel+": "+err.Error())
				continue
			}
			// Rename over any partial live file
			os.Remove(dst)
			if err := os.Rename(src, dst); err != nil {
				stepErrs = append(stepErrs, rel+": "+err.Error())
				continue
			}
			atomicfile.SyncDir(filepath.Dir(dst))
		}
		if len(stepErrs) > 0 {
			writeErrorRecord(o.root, ErrorRecord{
				Step:       "boot-recovery",
				Cause:      "interrupted swap restoration",
				StepErrors: stepErrs,
			})
		}
		metrics.RecoveriesTotal.Inc()
	}

	atomicfile.RemoveStrayTmp(o.stageDir)
	clearDir(o.stageDir)
	clearDir(o.backupDir)
}

// Swap drains the staging directory into the live tree, applies
// deletions, and finalizes with the installed-version record. On any
// failure the operation log is replayed in reverse and the original
// error is returned; rollback-step failures are recorded, not raised.
func (o *Orchestrator) Swap(rec types.VersionRecord, deletes []string, deletePatterns []string) (err error) {
	var applied []op
	finalized := false

	defer func() {
		if !finalized && err != nil {
			o.rollback(applied, err)
		}
		clearDir(o.stageDir)
		clearDir(o.backupDir)
	}()

	// Promote staged files in walk order
	staged := listFiles(o.stageDir)
	for _, rel := range staged {
		stagePath := filepath.Join(o.stageDir, rel)
		target := filepath.Join(o.root, rel)
		backup := filepath.Join(o.backupDir, rel)

		if err = os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return errdefs.Wrap(errdefs.ErrIOFault, err)
		}

		_, statErr := os.Stat(target)
		replacing := statErr == nil

		if replacing {
			if err = os.MkdirAll(filepath.Dir(backup), 0755); err != nil {
				return errdefs.Wrap(errdefs.ErrIOFault, err)
			}
			if err = os.Rename(target, backup); err != nil {
				return errdefs.Wrap(errdefs.ErrIOFault, err)
			}
			atomicfile.SyncDir(filepath.Dir(backup))
			// Recorded before the stage rename: if that rename fails the
			// live file is already in backup and must be restored
			applied = append(applied, replaceOp{target: target, backup: backup})
		}

		if err = os.Rename(stagePath, target); err != nil {
			return errdefs.Wrap(errdefs.ErrIOFault, err)
		}
		atomicfile.SyncDir(filepath.Dir(target))
		if !replacing {
			applied = append(applied, newOp{target: target})
		}
		o.logger.Debug().Str("path", rel).Msg("Promoted staged file")
	}

	// Deletions requested by the manifest
	stagedSet := make(map[string]bool, len(staged))
	for _, rel := range staged {
		stagedSet[rel] = true
	}
	for _, rel := range deletes {
		if err = o.backupDelete(rel, &applied); err != nil {
			return err
		}
	}

	// Conservative sweep of stale files matching explicit prefixes
	if len(deletePatterns) > 0 {
		for _, rel := range o.sweepCandidates(deletePatterns, stagedSet) {
			if err = o.backupDelete(rel, &applied); err != nil {
				return err
			}
		}
	}

	// Finalization: sync everything, then the record, then sync again.
	// Only after the record rename is the swap observable as committed.
	atomicfile.SyncDir(o.root)
	if err = WriteVersion(o.root, rec); err != nil {
		return err
	}
	atomicfile.SyncDir(o.root)
	finalized = true

	metrics.SwapsTotal.Inc()
	o.logger.Info().Str("ref", rec.Ref).Str("commit", rec.Commit).
		Int("files", len(staged)).Int("ops", len(applied)).Msg("Swap finalized")
	return nil
}

// backupDelete moves a live file into backup as a delete operation
func (o *Orchestrator) backupDelete(rel string, applied *[]op) error {
	target := filepath.Join(o.root, rel)
	if _, err := os.Stat(target); err != nil {
		return nil // nothing to delete
	}
	backup := filepath.Join(o.backupDir, rel)
	if err := os.MkdirAll(filepath.Dir(backup), 0755); err != nil {
		return errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	if err := os.Rename(target, backup); err != nil {
		return errdefs.Wrap(errdefs.ErrIOFault, err)
	}
	atomicfile.SyncDir(filepath.Dir(backup))
	*applied = append(*applied, deleteOp{target: target, backup: backup})
	o.logger.Debug().Str("path", rel).Msg("Backed up for deletion")
	return nil
}

// sweepCandidates walks the live tree for files matching the configured
// prefixes that are not part of the new staging set. Engine state files
// are never candidates.
func (o *Orchestrator) sweepCandidates(patterns []string, stagedSet map[string]bool) []string {
	var out []string
	filepath.Walk(o.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path == o.stageDir || path == o.backupDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(o.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		switch rel {
		case VersionFile, ErrorFile, historyFileName:
			return nil
		}
		if stagedSet[rel] {
			return nil
		}
		if matchPrefix(rel, patterns) {
			out = append(out, rel)
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// rollback replays the operation log in reverse. Every failure is
// logged and recorded; none aborts the remaining entries.
func (o *Orchestrator) rollback(applied []op, cause error) {
	o.logger.Error().Err(cause).Int("ops", len(applied)).Msg("Swap failed, rolling back")
	var stepErrs []string
	for i := len(applied) - 1; i >= 0; i-- {
		if err := applied[i].revert(); err != nil {
			stepErrs = append(stepErrs, applied[i].String()+": "+err.Error())
			o.logger.Error().Err(err).Str("op", applied[i].String()).Msg("Rollback step failed")
		}
	}
	atomicfile.SyncDir(o.root)
	writeErrorRecord(o.root, ErrorRecord{
		AttemptID:  o.attemptID,
		Step:       "swap",
		Cause:      cause.Error(),
		StepErrors: stepErrs,
	})
	metrics.RollbacksTotal.Inc()
}

// matchPrefix reports whether rel equals a pattern or sits under one
// treated as a directory prefix
func matchPrefix(rel string, patterns []string) bool {
	for _, p := range patterns {
		p = strings.TrimSuffix(p, "/")
		if p == "" {
			continue
		}
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// listFiles returns all regular files under dir as sorted slash-relative
// paths. A missing directory is an empty list.
func listFiles(dir string) []string {
	var out []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(out)
	return out
}

// clearDir removes everything under dir, recreating it empty
func clearDir(dir string) {
	os.RemoveAll(dir)
	os.MkdirAll(dir, 0755)
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/okian/typerace/pkg/logger"
	"github.com/okian/typerace/pkg/metrics"
)

const (
	backupPrefix = "leaderboard-"
	backupSuffix = ".db"
	dirPerm      = 0o755
)

type backupFile struct {
	path   string
	millis int64
}

func backupName(t time.Time) string {
	return backupPrefix + strconv.FormatInt(t.UnixMilli(), 10) + backupSuffix
}

// nextBackupPath names a backup taken at t. A name already in dir is never
// reused: the stamp moves forward a millisecond at a time, which keeps names
// parseable and newest-last.
func nextBackupPath(dir string, t time.Time) (string, error) {
	for {
		path := filepath.Join(dir, backupName(t))
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
		t = t.Add(time.Millisecond)
	}
}

// listBackups returns the backups in dir, newest first. A missing dir has
// no backups.
func listBackups(dir string) ([]backupFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []backupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		ms, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, backupFile{path: filepath.Join(dir, name), millis: ms})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].millis > out[j].millis })
	return out, nil
}

// Backup implements Store.Backup.
func (s *Leaderboard) Backup(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "leaderboard.backup")
	defer span.End()

	if s.closed.Load() {
		return "", ErrClosed
	}
	if s.backupDir == "" {
		return "", fmt.Errorf("%w: no backup directory configured", ErrStorage)
	}
	start := time.Now()

	if err := os.MkdirAll(s.backupDir, dirPerm); err != nil {
		metrics.RecordBackup(false, 0)
		return "", fmt.Errorf("%w: create backup dir: %w", ErrStorage, err)
	}
	path, err := nextBackupPath(s.backupDir, s.now())
	if err != nil {
		metrics.RecordBackup(false, 0)
		return "", fmt.Errorf("%w: name backup: %w", ErrStorage, err)
	}
	if err := s.kv.vacuumInto(ctx, path); err != nil {
		span.RecordError(err)
		metrics.RecordBackup(false, 0)
		metrics.RecordErrorByComponent("repository", "backup_"+errorKind(err))
		return "", fmt.Errorf("%w: backup to %s: %w", ErrStorage, path, err)
	}

	removed, err := s.pruneBackups()
	if err != nil {
		s.log.Warn(ctx, "backup prune failed", logger.String("dir", s.backupDir), logger.Error(err))
	}

	elapsed := time.Since(start)
	metrics.RecordBackup(true, float64(elapsed.Milliseconds()))
	s.log.Info(ctx, "leaderboard backup written",
		logger.String("path", path),
		logger.Int("pruned", removed),
		logger.Duration("took", elapsed))
	return path, nil
}

// pruneBackups deletes all but the newest backupRetain backups.
func (s *Leaderboard) pruneBackups() (int, error) {
	files, err := listBackups(s.backupDir)
	if err != nil || len(files) <= s.backupRetain {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, f := range files[s.backupRetain:] {
		if err := os.Remove(f.path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Restore prepares dataDir before the store is opened. When dataDir is
// missing, the newest backup in backupDir is copied into it. A dataDir that
// exists but is not a directory is first renamed to dataDir.broken-<unixMillis>
// and then treated as missing. It reports
// whether a backup was restored. Having no backup is not an error: the store
// then starts empty.
func Restore(ctx context.Context, dataDir, backupDir string, log logger.Logger) (bool, error) {
	info, err := os.Stat(dataDir)
	switch {
	case err == nil && info.IsDir():
		return false, nil
	case err == nil:
		aside := dataDir + ".broken-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
		if err := os.Rename(dataDir, aside); err != nil {
			return false, fmt.Errorf("%w: move aside non-directory data dir %s: %w", ErrStartup, dataDir, err)
		}
		log.Warn(ctx, "data dir is not a directory; moved aside",
			logger.String("data_dir", dataDir), logger.String("moved_to", aside))
	case !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("%w: stat data dir: %w", ErrStartup, err)
	}

	files, err := listBackups(backupDir)
	if err != nil {
		return false, fmt.Errorf("%w: list backups: %w", ErrStartup, err)
	}
	if len(files) == 0 {
		log.Info(ctx, "no backup found; starting with an empty leaderboard",
			logger.String("data_dir", dataDir), logger.String("backup_dir", backupDir))
		return false, nil
	}

	newest := files[0]
	if err := os.MkdirAll(dataDir, dirPerm); err != nil {
		return false, fmt.Errorf("%w: create data dir: %w", ErrStartup, err)
	}
	if err := copyFile(newest.path, filepath.Join(dataDir, dbFileName)); err != nil {
		return false, fmt.Errorf("%w: restore %s: %w", ErrStartup, newest.path, err)
	}
	metrics.RecordRestore()
	log.Info(ctx, "leaderboard restored from backup",
		logger.String("backup", newest.path),
		logger.Int64("backup_unix_ms", newest.millis))
	return true, nil
}

// copyFile copies src to dst through a temporary file so a crash never
// leaves a half-written database behind.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".restore-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

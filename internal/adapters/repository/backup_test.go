package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/okian/typerace/pkg/logger"
)

func TestBackup_LoseDataDirThenRestore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	backupDir := filepath.Join(root, "backups")

	s, err := Open(ctx, dataDir, WithBackupDir(backupDir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	mustBuffer(t, s, sub("alice", 32, 16, 1000), sub("bob", 50, 0, 2000))
	if _, err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	path, err := s.Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := os.RemoveAll(dataDir); err != nil {
		t.Fatalf("remove data dir: %v", err)
	}

	restored, err := Open(ctx, dataDir, WithBackupDir(backupDir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer restored.Close(ctx)

	got, err := restored.Query(ctx, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	want := []row{{"bob", 500, 2000}, {"alice", 400, 1000}}
	if diff := cmp.Diff(want, rows(got)); diff != "" {
		t.Fatalf("restored leaderboard (-want +got):\n%s", diff)
	}
}

func TestBackup_Retention(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	backupDir := filepath.Join(root, "backups")

	tick := time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	s := openTestStore(t, WithBackupDir(backupDir), WithBackupRetain(2), WithClock(clock))

	var paths []string
	for i := 0; i < 4; i++ {
		p, err := s.Backup(ctx)
		if err != nil {
			t.Fatalf("backup %d: %v", i, err)
		}
		paths = append(paths, p)
	}

	files, err := listBackups(backupDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, f := range files {
		got = append(got, f.path)
	}
	if diff := cmp.Diff([]string{paths[3], paths[2]}, got); diff != "" {
		t.Fatalf("retained backups (-want +got):\n%s", diff)
	}
}

func TestBackup_SameMillisecondGetsDistinctNames(t *testing.T) {
	ctx := context.Background()
	backupDir := filepath.Join(t.TempDir(), "backups")
	frozen := time.UnixMilli(1_700_000_000_000)
	s := openTestStore(t, WithBackupDir(backupDir), WithClock(func() time.Time { return frozen }))

	first, err := s.Backup(ctx)
	if err != nil {
		t.Fatalf("first backup: %v", err)
	}
	second, err := s.Backup(ctx)
	if err != nil {
		t.Fatalf("second backup: %v", err)
	}
	if first == second {
		t.Fatalf("both backups written to %s", first)
	}

	files, err := listBackups(backupDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []string
	for _, f := range files {
		got = append(got, f.path)
	}
	if diff := cmp.Diff([]string{second, first}, got); diff != "" {
		t.Fatalf("backups newest first (-want +got):\n%s", diff)
	}
}

func TestBackup_WithoutDirectory(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Backup(context.Background()); !errors.Is(err, ErrStorage) {
		t.Fatalf("backup without dir: got %v, want ErrStorage", err)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("existing data dir is left alone", func(t *testing.T) {
		dataDir := t.TempDir()
		ok, err := Restore(ctx, dataDir, t.TempDir(), logger.Nop())
		if err != nil || ok {
			t.Fatalf("Restore = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("no backup is not an error", func(t *testing.T) {
		root := t.TempDir()
		ok, err := Restore(ctx, filepath.Join(root, "data"), filepath.Join(root, "none"), logger.Nop())
		if err != nil || ok {
			t.Fatalf("Restore = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("data dir that is a file is moved aside and restored", func(t *testing.T) {
		root := t.TempDir()
		backupDir := filepath.Join(root, "backups")
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(backupDir, "leaderboard-100.db"), []byte("snapshot"), 0o600); err != nil {
			t.Fatal(err)
		}
		dataDir := filepath.Join(root, "data")
		if err := os.WriteFile(dataDir, []byte("junk"), 0o600); err != nil {
			t.Fatal(err)
		}

		ok, err := Restore(ctx, dataDir, backupDir, logger.Nop())
		if err != nil || !ok {
			t.Fatalf("Restore = %v, %v; want true, nil", ok, err)
		}
		got, err := os.ReadFile(filepath.Join(dataDir, dbFileName))
		if err != nil || string(got) != "snapshot" {
			t.Fatalf("restored %q, %v; want the backup", got, err)
		}
		aside, _ := filepath.Glob(dataDir + ".broken-*")
		if len(aside) != 1 {
			t.Fatalf("moved-aside files = %v, want one", aside)
		}
		if junk, _ := os.ReadFile(aside[0]); string(junk) != "junk" {
			t.Fatalf("moved-aside content %q, want the original file", junk)
		}
	})

	t.Run("data dir that is a file with no backup starts empty", func(t *testing.T) {
		root := t.TempDir()
		dataDir := filepath.Join(root, "data")
		if err := os.WriteFile(dataDir, []byte("junk"), 0o600); err != nil {
			t.Fatal(err)
		}
		s, err := Open(ctx, dataDir, WithBackupDir(filepath.Join(root, "backups")))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer s.Close(ctx)
		if n, _ := s.Count(ctx); n != 0 {
			t.Fatalf("count = %d, want 0", n)
		}
	})

	t.Run("data dir that is a file without a backup dir fails startup", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "data")
		if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Open(ctx, file); !errors.Is(err, ErrStartup) {
			t.Fatalf("Open: got %v, want ErrStartup", err)
		}
	})

	t.Run("newest backup wins", func(t *testing.T) {
		root := t.TempDir()
		backupDir := filepath.Join(root, "backups")
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			t.Fatal(err)
		}
		for name, body := range map[string]string{
			"leaderboard-100.db": "old",
			"leaderboard-300.db": "new",
			"leaderboard-200.db": "mid",
			"notes.txt":          "ignored",
		} {
			if err := os.WriteFile(filepath.Join(backupDir, name), []byte(body), 0o600); err != nil {
				t.Fatal(err)
			}
		}
		dataDir := filepath.Join(root, "data")
		ok, err := Restore(ctx, dataDir, backupDir, logger.Nop())
		if err != nil || !ok {
			t.Fatalf("Restore = %v, %v; want true, nil", ok, err)
		}
		got, err := os.ReadFile(filepath.Join(dataDir, dbFileName))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "new" {
			t.Fatalf("restored %q, want the newest backup", got)
		}
	})
}

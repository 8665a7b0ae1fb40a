package detector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeAlertFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alert.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write alert file: %v", err)
	}
	return path
}

func TestFileFeedCountsNewLines(t *testing.T) {
	path := writeAlertFile(t, "alert one\nalert two\n")
	feed := &FileFeed{Path: path}

	count, cp, err := feed.ReadSince(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadSince: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if cp != Checkpoint(len("alert one\nalert two\n")) {
		t.Fatalf("checkpoint = %d, want file size", cp)
	}
}

func TestFileFeedResumesFromCheckpoint(t *testing.T) {
	path := writeAlertFile(t, "alert one\n")
	feed := &FileFeed{Path: path}

	_, cp, err := feed.ReadSince(context.Background(), 0)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("alert two\nalert three\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	count, next, err := feed.ReadSince(context.Background(), cp)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2 (only alerts after the checkpoint)", count)
	}
	if next <= cp {
		t.Fatalf("checkpoint did not advance: %d -> %d", cp, next)
	}
}

func TestFileFeedIgnoresTrailingPartialLine(t *testing.T) {
	path := writeAlertFile(t, "alert one\npartial alert without newline")
	feed := &FileFeed{Path: path}

	count, cp, err := feed.ReadSince(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReadSince: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 (partial line belongs to next read)", count)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		t.Fatalf("append newline: %v", err)
	}
	f.Close()

	count, _, err = feed.ReadSince(context.Background(), cp)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 (completed line now counts)", count)
	}
}

func TestFileFeedMissingFileIsUnavailable(t *testing.T) {
	feed := &FileFeed{Path: filepath.Join(t.TempDir(), "absent.log")}

	count, cp, err := feed.ReadSince(context.Background(), 7)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
	if cp != 7 {
		t.Fatalf("checkpoint changed on failure: %d", cp)
	}
}

func TestFileFeedTruncationNeverRewinds(t *testing.T) {
	path := writeAlertFile(t, "alert one\nalert two\nalert three\n")
	feed := &FileFeed{Path: path}

	_, cp, err := feed.ReadSince(context.Background(), 0)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}

	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	count, next, err := feed.ReadSince(context.Background(), cp)
	if err != nil {
		t.Fatalf("read after truncation: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 (checkpoint past EOF never rewinds)", count)
	}
	if next != cp {
		t.Fatalf("checkpoint moved backwards: %d -> %d", cp, next)
	}
}

func TestFileFeedCancelledContext(t *testing.T) {
	path := writeAlertFile(t, "alert one\n")
	feed := &FileFeed{Path: path}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, cp, err := feed.ReadSince(ctx, 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if cp != 0 {
		t.Fatalf("checkpoint advanced despite cancellation: %d", cp)
	}
}

package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeImage writes a fake image with the given modification time.
func writeImage(t *testing.T, dir, name, content string, mod time.Time) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func newTestGallery(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	writeImage(t, dir, "old.jpg", "old", base)
	writeImage(t, dir, "new.png", "new", base.Add(30*time.Minute))
	writeImage(t, dir, "mid.JPEG", "mid", base.Add(10*time.Minute))
	writeImage(t, dir, "notes.txt", "skip", base.Add(50*time.Minute))
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestGalleryList(t *testing.T) {
	g := NewGallery(newTestGallery(t), nil, nil)

	entries, err := g.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	got := strings.Join(names, ",")
	if got != "new.png,mid.JPEG,old.jpg" {
		t.Errorf("Expected newest-first image list, got %s", got)
	}
}

func TestGalleryLatest(t *testing.T) {
	g := NewGallery(newTestGallery(t), LatestChooser{}, nil)

	data, err := g.Capture(context.Background(), ModeStored)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("Expected newest image, got %q", data)
	}
}

func TestGalleryEmpty(t *testing.T) {
	g := NewGallery(t.TempDir(), nil, nil)

	_, err := g.Capture(context.Background(), ModeStored)
	if !errors.Is(err, ErrNoImages) {
		t.Errorf("Expected ErrNoImages, got %v", err)
	}
}

func TestGalleryMissingDir(t *testing.T) {
	g := NewGallery(filepath.Join(t.TempDir(), "missing"), nil, nil)

	_, err := g.Capture(context.Background(), ModeStored)
	if err == nil || IsCancelled(err) {
		t.Errorf("Expected acquisition error, got %v", err)
	}
}

func TestPromptChooserSelect(t *testing.T) {
	var out bytes.Buffer
	chooser := NewPromptChooser(strings.NewReader("abc\n9\n2\n"), &out)
	g := NewGallery(newTestGallery(t), chooser, nil)

	data, err := g.Capture(context.Background(), ModeStored)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if string(data) != "mid" {
		t.Errorf("Expected second entry, got %q", data)
	}
	if !strings.Contains(out.String(), "invalid choice") {
		t.Errorf("Expected invalid choice message, got %q", out.String())
	}
}

func TestPromptChooserCancel(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"blank line", "\n"},
		{"quit", "q\n"},
		{"eof", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chooser := NewPromptChooser(strings.NewReader(tt.input), io.Discard)
			g := NewGallery(newTestGallery(t), chooser, nil)

			_, err := g.Capture(context.Background(), ModeStored)
			if !errors.Is(err, ErrCancelled) {
				t.Errorf("Expected ErrCancelled, got %v", err)
			}
		})
	}
}

func TestPromptChooserContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	chooser := NewPromptChooser(pr, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := chooser.Choose(ctx, []Entry{{Name: "a.jpg"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if IsCancelled(err) {
		t.Errorf("Deadline reported as user cancellation: %v", err)
	}
}

func TestPromptChooserIgnoresLineTypedAfterTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	chooser := NewPromptChooser(pr, io.Discard)
	entries := []Entry{{Name: "a.jpg"}, {Name: "b.jpg"}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := chooser.Choose(ctx, entries); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}

	// The pipe write returns once the reader has consumed the line.
	if _, err := io.WriteString(pw, "1\n"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	go io.WriteString(pw, "2\n")

	got, err := chooser.Choose(context.Background(), entries)
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	if got.Name != "b.jpg" {
		t.Errorf("Expected b.jpg, got %s", got.Name)
	}
}

func TestLatestChooserCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LatestChooser{}.Choose(ctx, []Entry{{Name: "a.jpg"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if IsCancelled(err) {
		t.Errorf("Context cancellation reported as user cancellation: %v", err)
	}
}

package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Entry is one stored image offered to a Chooser.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Chooser selects one entry from stored media.
// Returning ErrCancelled abandons the pick. Context expiry is reported as
// the wrapped context error instead.
type Chooser interface {
	Choose(ctx context.Context, entries []Entry) (Entry, error)
}

// imageExts lists the file extensions the gallery offers.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Gallery picks images from a directory of stored media.
type Gallery struct {
	dir      string
	chooser  Chooser
	maxBytes int64
	logger   *slog.Logger
}

// NewGallery creates a Gallery over dir. A nil chooser picks the newest image.
func NewGallery(dir string, chooser Chooser, logger *slog.Logger) *Gallery {
	if chooser == nil {
		chooser = LatestChooser{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gallery{
		dir:      dir,
		chooser:  chooser,
		maxBytes: 32 << 20,
		logger:   logger.With("component", "capture.gallery"),
	}
}

// List returns the images in the gallery, newest first.
func (g *Gallery) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("capture: read gallery %s: %w", g.dir, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !imageExts[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(g.dir, de.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}

// Capture lets the chooser pick an image and returns its bytes.
func (g *Gallery) Capture(ctx context.Context, mode Mode) ([]byte, error) {
	entries, err := g.List()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoImages
	}

	entry, err := g.chooser.Choose(ctx, entries)
	if err != nil {
		return nil, err
	}
	if entry.Size > g.maxBytes {
		return nil, fmt.Errorf("capture: %s is too large (%d bytes)", entry.Name, entry.Size)
	}

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("capture: read %s: %w", entry.Name, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	g.logger.Debug("picked stored image", "name", entry.Name, "bytes", len(data))
	return data, nil
}

// LatestChooser always picks the first (newest) entry.
type LatestChooser struct{}

// Choose implements Chooser.
func (LatestChooser) Choose(ctx context.Context, entries []Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, fmt.Errorf("capture: picker: %w", err)
	}
	if len(entries) == 0 {
		return Entry{}, ErrNoImages
	}
	return entries[0], nil
}

// PromptChooser lists entries on a terminal and reads the user's selection.
// A blank line or "q" cancels.
type PromptChooser struct {
	out io.Writer

	once  sync.Once
	in    io.Reader
	lines chan string
}

// NewPromptChooser creates a PromptChooser reading from in and writing to out.
func NewPromptChooser(in io.Reader, out io.Writer) *PromptChooser {
	return &PromptChooser{in: in, out: out}
}

// readLines pumps input lines so a pending prompt can be abandoned on ctx.
func (p *PromptChooser) readLines() {
	p.lines = make(chan string)
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
}

// discardPending drops lines typed after an earlier prompt was abandoned.
func (p *PromptChooser) discardPending() {
	for {
		select {
		case _, ok := <-p.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Choose implements Chooser.
func (p *PromptChooser) Choose(ctx context.Context, entries []Entry) (Entry, error) {
	p.once.Do(p.readLines)
	p.discardPending()

	fmt.Fprintln(p.out, "Select a stored image:")
	for i, e := range entries {
		fmt.Fprintf(p.out, "  %d) %s (%d KB, %s)\n", i+1, e.Name, e.Size/1024, e.ModTime.Format("2006-01-02 15:04"))
	}

	for {
		fmt.Fprint(p.out, "number (blank to cancel): ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return Entry{}, fmt.Errorf("capture: picker: %w", ctx.Err())
		case l, ok := <-p.lines:
			if !ok {
				return Entry{}, ErrCancelled
			}
			line = strings.TrimSpace(l)
		}

		if line == "" || strings.EqualFold(line, "q") {
			return Entry{}, ErrCancelled
		}

		n, err := strconv.Atoi(line)
		if err != nil || n < 1 || n > len(entries) {
			fmt.Fprintf(p.out, "invalid choice %q\n", line)
			continue
		}
		return entries[n-1], nil
	}
}

var (
	_ Source  = (*Gallery)(nil)
	_ Chooser = LatestChooser{}
	_ Chooser = (*PromptChooser)(nil)
)

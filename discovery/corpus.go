package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/modlink"
	"github.com/GoCodeAlone/modlink/descriptor"
)

// Corpus is the storage behind discovery: a read step enumerating every
// existing descriptor and a write step persisting one new descriptor.
type Corpus interface {
	Read(ctx context.Context) ([]*descriptor.Descriptor, error)
	Write(ctx context.Context, d *descriptor.Descriptor) error
}

// DirCorpus stores one descriptor file per module in a directory. A missing
// directory reads as an empty corpus and is created on first write.
type DirCorpus struct {
	dir      string
	format   descriptor.Format
	debounce time.Duration
	logger   modlink.Logger
}

// DirCorpusOption configures a DirCorpus.
type DirCorpusOption func(*DirCorpus)

// WithFormat selects the encoding used by Write. Markdown is the default.
func WithFormat(f descriptor.Format) DirCorpusOption {
	return func(c *DirCorpus) {
		c.format = f
	}
}

// WithDebounce sets how long Watch waits for a burst of file events to
// settle before re-reading the corpus.
func WithDebounce(d time.Duration) DirCorpusOption {
	return func(c *DirCorpus) {
		c.debounce = d
	}
}

// WithCorpusLogger sets the logger.
func WithCorpusLogger(l modlink.Logger) DirCorpusOption {
	return func(c *DirCorpus) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewDirCorpus returns a corpus rooted at dir.
func NewDirCorpus(dir string, opts ...DirCorpusOption) *DirCorpus {
	c := &DirCorpus{
		dir:      dir,
		format:   descriptor.FormatMarkdown,
		debounce: 200 * time.Millisecond,
		logger:   modlink.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the corpus directory.
func (c *DirCorpus) Dir() string {
	return c.dir
}

// Read parses every descriptor file in the directory, in file name order.
// Files without a descriptor suffix are ignored. A module described by two
// files is an error.
func (c *DirCorpus) Read(ctx context.Context) ([]*descriptor.Descriptor, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("Descriptor corpus missing, treating as empty", "dir", c.dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", c.dir, err)
	}

	var out []*descriptor.Descriptor
	seen := make(map[string]string)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !descriptor.IsDescriptorFile(e.Name()) {
			continue
		}
		d, err := descriptor.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[d.ModuleID]; ok {
			return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateModule, d.ModuleID, prev, e.Name())
		}
		seen[d.ModuleID] = e.Name()
		out = append(out, d)
	}
	c.logger.Debug("Read descriptor corpus", "dir", c.dir, "descriptors", len(out))
	return out, nil
}

// Write stores d as <module>.integration.<ext>, replacing any file of the
// same module in another encoding.
func (c *DirCorpus) Write(ctx context.Context, d *descriptor.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ModuleID == "" {
		return descriptor.ErrModuleIDMissing
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create corpus %s: %w", c.dir, err)
	}

	path := filepath.Join(c.dir, descriptor.FileName(d.ModuleID, c.format))
	if err := descriptor.WriteFile(path, d); err != nil {
		return fmt.Errorf("failed to write descriptor %s: %w", path, err)
	}

	for _, f := range []descriptor.Format{descriptor.FormatMarkdown, descriptor.FormatYAML, descriptor.FormatTOML, descriptor.FormatJSON} {
		if f == c.format {
			continue
		}
		stale := filepath.Join(c.dir, descriptor.FileName(d.ModuleID, f))
		if err := os.Remove(stale); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale descriptor %s: %w", stale, err)
		}
	}
	// The .yml spelling is read but never written.
	_ = os.Remove(filepath.Join(c.dir, d.ModuleID+descriptor.FileSuffix+".yml"))

	c.logger.Info("Wrote descriptor", "module", d.ModuleID, "path", path)
	return nil
}

// Watch re-reads the corpus whenever a descriptor file changes and hands
// the result to onChange. It blocks until ctx is done. The directory is
// created if missing so it can be watched.
func (c *DirCorpus) Watch(ctx context.Context, onChange func([]*descriptor.Descriptor, error)) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create corpus %s: %w", c.dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}
	c.logger.Info("Watching descriptor corpus", "dir", c.dir)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !descriptor.IsDescriptorFile(ev.Name) || ev.Op == fsnotify.Chmod {
				continue
			}
			c.logger.Debug("Descriptor file changed", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(c.debounce)
			} else {
				timer.Reset(c.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("Corpus watcher error", "dir", c.dir, "error", err)
		case <-fire:
			fire = nil
			descriptors, err := c.Read(ctx)
			onChange(descriptors, err)
		}
	}
}

// MemCorpus keeps descriptors in memory, keyed by module id. Read returns
// them in module id order.
type MemCorpus struct {
	mu          sync.RWMutex
	descriptors map[string]*descriptor.Descriptor
}

// NewMemCorpus returns a corpus seeded with descriptors.
func NewMemCorpus(descriptors ...*descriptor.Descriptor) *MemCorpus {
	c := &MemCorpus{descriptors: make(map[string]*descriptor.Descriptor)}
	for _, d := range descriptors {
		c.descriptors[d.ModuleID] = d.Clone()
	}
	return c
}

// Read implements Corpus.
func (c *MemCorpus) Read(ctx context.Context) ([]*descriptor.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := slices.Sorted(maps.Keys(c.descriptors))
	out := make([]*descriptor.Descriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.descriptors[id].Clone())
	}
	return out, nil
}

// Write implements Corpus.
func (c *MemCorpus) Write(ctx context.Context, d *descriptor.Descriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ModuleID == "" {
		return descriptor.ErrModuleIDMissing
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[d.ModuleID] = d.Clone()
	return nil
}

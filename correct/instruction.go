package correct

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Instruction is the system prompt used for correction. It is safe for
// concurrent use and can follow a file on disk.
type Instruction struct {
	mu   sync.RWMutex
	text string
	path string
}

func NewInstruction(text string) *Instruction {
	return &Instruction{text: text}
}

// LoadInstruction reads the prompt from path.
func LoadInstruction(path string) (*Instruction, error) {
	i := &Instruction{path: path}
	if err := i.reload(); err != nil {
		return nil, err
	}
	return i, nil
}

func (i *Instruction) String() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.text
}

func (i *Instruction) reload() error {
	data, err := os.ReadFile(i.path)
	if err != nil {
		return fmt.Errorf("failed to read instruction file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fmt.Errorf("instruction file %s is empty", i.path)
	}

	i.mu.Lock()
	i.text = text
	i.mu.Unlock()
	return nil
}

// Watch reloads the instruction whenever its file is written or replaced,
// until ctx is done. A failed reload keeps the previous text.
func (i *Instruction) Watch(ctx context.Context) error {
	if i.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(i.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	slog.Info("Watching correction instruction", "path", i.path)

	target := filepath.Clean(i.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if err := i.reload(); err != nil {
				slog.Error("Failed to reload correction instruction",
					"error", err,
					"path", i.path)
				continue
			}
			slog.Info("Reloaded correction instruction", "path", i.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Instruction watcher error", "error", err)
		}
	}
}

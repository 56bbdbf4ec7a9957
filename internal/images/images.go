// Package images defines the optional illustration generator the collection
// job calls before storing a batch. Absence of an image is never an error;
// the pipeline proceeds text-only.
package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Generator produces an illustration for an item's content, or (nil, nil)
// when it has nothing to offer.
type Generator interface {
	Generate(ctx context.Context, text string) ([]byte, error)
}

type disabled struct{}

func (disabled) Generate(context.Context, string) ([]byte, error) { return nil, nil }

// Disabled returns a generator that never produces images.
func Disabled() Generator { return disabled{} }

// Dir lays out image files per calendar date next to the batch files.
type Dir struct {
	Root string
}

// PathFor returns where the image for an item of a given date belongs,
// creating the per-date directory.
func (d Dir) PathFor(date time.Time, itemID string) (string, error) {
	sub := filepath.Join(d.Root, date.Format("2006-01-02"))
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", fmt.Errorf("image dir: %w", err)
	}
	return filepath.Join(sub, itemID+".png"), nil
}

package item

import (
	"context"
	"fmt"
	"os"
)

// DirectoryDecoder treats every regular file as an item of the series named
// after its parent directory relative to root. Files directly under root
// belong to no series.
type DirectoryDecoder struct {
	root string
}

func NewDirectoryDecoder(root string) *DirectoryDecoder {
	return &DirectoryDecoder{root: root}
}

func (d *DirectoryDecoder) Decode(ctx context.Context, path string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Item{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return Item{}, fmt.Errorf("%w: %s is not a regular file", ErrNotSeriesItem, path)
	}
	dir := relativeDir(d.root, path)
	if dir == "" {
		return Item{}, fmt.Errorf("%w: %s is not inside a series directory", ErrNotSeriesItem, path)
	}
	return Item{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Meta:    Meta{Directory: dir},
	}, nil
}

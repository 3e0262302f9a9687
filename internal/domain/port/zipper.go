package port

import (
	"context"
	"fmt"
	"path/filepath"
)

// ManifestName is the archive entry describing the packed frames.
const ManifestName = "manifest.json"

type Zipper interface {
	// CreateZip packs filePaths in order under EntryName. A non-nil manifest
	// is stored as ManifestName.
	CreateZip(ctx context.Context, filePaths []string, manifest []byte, outputPath string) error
}

// EntryName is the archive name of the i-th (0-based) frame. The position
// prefix keeps archive listings in selection order.
func EntryName(i int, path string) string {
	return fmt.Sprintf("%03d_%s", i+1, filepath.Base(path))
}

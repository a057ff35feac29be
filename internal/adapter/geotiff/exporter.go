package geotiff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/climate-risk-service/internal/raster"
)

// Exporter writes single-band exports under a directory.
type Exporter struct {
	dir string
}

// NewExporter writes into dir, creating it on first export.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

// Export writes band of f to <dir>/<key>.tif and returns the file path.
func (e *Exporter) Export(ctx context.Context, key string, f raster.Frame, band string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := filepath.Join(e.dir, filepath.FromSlash(key)+".tif")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("export %s: %w", key, err)
	}
	if err := WriteFrame(path, f, band); err != nil {
		return "", fmt.Errorf("export %s: %w", key, err)
	}
	return path, nil
}

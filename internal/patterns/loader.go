package patterns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/firewall-mcp/internal/models"
)

// PackFile is the YAML root of a pattern pack.
type PackFile struct {
	Categories map[string][]models.CorrelationPattern `yaml:"categories"`
}

// FileSource reads a pattern pack from path. A missing file yields no patterns.
func FileSource(path string) SourceFunc {
	return func(ctx context.Context) (map[string][]models.CorrelationPattern, error) {
		if path == "" {
			return nil, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		var pack PackFile
		if err := yaml.Unmarshal(data, &pack); err != nil {
			return nil, fmt.Errorf("parse pattern pack %s: %w", path, err)
		}
		return pack.Categories, nil
	}
}

// LoadFile merges the pattern pack at path into the catalog.
func LoadFile(ctx context.Context, c *Catalog, path string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	added, err := Refresh(ctx, c, FileSource(path))
	if err != nil {
		return 0, err
	}
	if added > 0 {
		logger.Info("pattern pack loaded", slog.String("path", path), slog.Int("patterns", added))
	}
	return added, nil
}

package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDir compiles every *.rego file in dir into the engine. Policy names
// are derived from the file name without its extension.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading policy directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading policy file %s: %w", path, err)
		}

		name := strings.TrimSuffix(entry.Name(), ".rego")
		p := Policy{
			Name:        name,
			Description: fmt.Sprintf("user policy from %s", path),
			Source:      string(source),
		}
		if err := e.AddPolicy(ctx, p); err != nil {
			return err
		}
		e.logger.Info().Str("policy", name).Str("path", path).Msg("user policy loaded")
	}
	return nil
}

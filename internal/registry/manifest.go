// ABOUTME: Optional TOML sidecar manifests for module scripts.
// ABOUTME: A <name>.toml next to <name>.lua can describe or disable the module.

package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Sidecar is the optional per-module manifest. It lets an operator
// disable a module without editing its source, and override the
// description shown by the control surface.
type Sidecar struct {
	Description string `toml:"description"`
	Disabled    bool   `toml:"disabled"`
}

// loadSidecar reads the TOML manifest next to a module source, if any.
// Returns (nil, nil) when no sidecar exists.
func loadSidecar(sourcePath string) (*Sidecar, error) {
	path := strings.TrimSuffix(sourcePath, ".lua") + ".toml"

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sidecar: %w", err)
	}

	var sc Sidecar
	if err := toml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing sidecar: %w", err)
	}
	return &sc, nil
}

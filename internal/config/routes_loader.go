package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// LoadRoutesFile loads and validates a routes configuration file.
//
// Error cases:
//   - file not found or unreadable
//   - invalid YAML syntax
//   - schema validation failure (unsupported version, duplicate names,
//     missing webhook paths)
func LoadRoutesFile(path string) (*RoutesFile, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load routes config from %q: %w", path, err)
	}

	var routes RoutesFile
	if err := k.UnmarshalWithConf("", &routes, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to parse routes config from %q: %w", path, err)
	}

	if err := routes.Validate(); err != nil {
		return nil, fmt.Errorf("routes config validation failed for %q: %w", path, err)
	}

	return &routes, nil
}

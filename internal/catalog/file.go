package catalog

import (
	"fmt"

	"github.com/spf13/viper"
)

type fileLayout struct {
	Steps          []StatusStep `mapstructure:"steps"`
	Roles          Roles        `mapstructure:"roles"`
	ApprovedClause string       `mapstructure:"approved_clause"`
}

// LoadFile reads a catalog from a YAML, JSON or TOML file. A missing approved
// clause falls back to the built-in text.
func LoadFile(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read status catalog %s: %w", path, err)
	}
	var layout fileLayout
	if err := v.Unmarshal(&layout); err != nil {
		return nil, fmt.Errorf("decode status catalog %s: %w", path, err)
	}
	if layout.ApprovedClause == "" {
		layout.ApprovedClause = defaultApprovedClause
	}
	c, err := New(layout.Steps, layout.Roles, layout.ApprovedClause)
	if err != nil {
		return nil, fmt.Errorf("status catalog %s: %w", path, err)
	}
	return c, nil
}

// Load returns the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

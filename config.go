package suivi

import "path/filepath"

// Config configures the engine's storage layout and manifest policy.
type Config struct {
	// DataDir is the root directory for the content database and the
	// coverage manifest.
	DataDir string `yaml:"data_dir"`
	// DatabaseFile overrides the content database path. Default:
	// DataDir/raw_content.db.
	DatabaseFile string `yaml:"database_file"`
	// ManifestFile overrides the coverage manifest path. Default:
	// DataDir/manifest.json.
	ManifestFile string `yaml:"manifest_file"`
	// StrictMerge disables day-adjacency coalescing when committing
	// coverage intervals.
	StrictMerge bool `yaml:"strict_merge"`
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DatabaseFile == "" {
		c.DatabaseFile = filepath.Join(c.DataDir, "raw_content.db")
	}
	if c.ManifestFile == "" {
		c.ManifestFile = filepath.Join(c.DataDir, "manifest.json")
	}
}

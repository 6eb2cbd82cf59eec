// Package partitioning parses the declarative partitioning-hints manifest.
// Partitioning is a store-level concern: cmd/cortex-server loads this
// manifest at startup and logs it, but no store backend receives it. The
// Postgres backend always applies its fixed 16-partition migration, and
// the SQLite backend ignores partitioning entirely.
package partitioning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the parsed shape of configs/partitioning.yaml.
type Manifest struct {
	MemoryNodeShards     int    `yaml:"memory_node_shards"`
	AttributionEdgeRange string `yaml:"attribution_edge_range"`
}

// DefaultManifest returns the default layout: 16 hash partitions on
// memory_nodes.shard_id, monthly range partitions on
// attribution_edges.created_at.
func DefaultManifest() Manifest {
	return Manifest{
		MemoryNodeShards:     16,
		AttributionEdgeRange: "monthly",
	}
}

// Load reads and parses a manifest file at path. A missing file is not an
// error — it returns DefaultManifest, falling back to sane defaults
// rather than failing startup on optional config.
func Load(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultManifest(), nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read partitioning manifest %s: %w", path, err)
	}

	m := DefaultManifest()
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse partitioning manifest %s: %w", path, err)
	}
	return m, nil
}

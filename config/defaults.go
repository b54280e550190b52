package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "modelry.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5000", "http://127.0.0.1:5000"})
	v.SetDefault("server.requests_per_second", 50.0)
	v.SetDefault("server.request_burst", 100)

	// Capacity guards. Repositories are small by design; both guards exist
	// to keep impact materialization from flooding the store.
	v.SetDefault("limits.max_canvases", 100)
	v.SetDefault("limits.max_instances", 5000)
	v.SetDefault("limits.max_visited", 1000)
	v.SetDefault("limits.max_traverse_hop", 10)

	// Annotation rendering defaults
	v.SetDefault("rules.annotation_row_height", 18.0)
	v.SetDefault("rules.annotation_width", 120.0)

	// Impact layout defaults
	v.SetDefault("impact.radial_step", 220.0)
	v.SetDefault("impact.center_x", 600.0)
	v.SetDefault("impact.center_y", 400.0)
	v.SetDefault("impact.node_width", 140.0)
	v.SetDefault("impact.node_height", 80.0)
}

// Package config manages Modelry configuration via Viper.
//
// Configuration is merged in precedence order: defaults < user file
// (~/.modelry/modelry.toml) < project file (./modelry.toml) < MODELRY_*
// environment variables.
package config

// Config represents the core Modelry configuration. The toml tags mirror the
// mapstructure tags so a saved file round-trips through the viper loader.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Server   ServerConfig   `mapstructure:"server" toml:"server"`
	Limits   LimitsConfig   `mapstructure:"limits" toml:"limits"`
	Rules    RulesConfig    `mapstructure:"rules" toml:"rules"`
	Impact   ImpactConfig   `mapstructure:"impact" toml:"impact"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// ServerConfig configures the Modelry HTTP server.
type ServerConfig struct {
	Port           int      `mapstructure:"port" toml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
	// RequestsPerSecond bounds per-client API throughput. 0 disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second"`
	RequestBurst      int     `mapstructure:"request_burst" toml:"request_burst"`
}

// LimitsConfig holds repository-wide capacity guards.
// Values <= 0 fall back to the defaults in defaults.go.
type LimitsConfig struct {
	MaxCanvases    int `mapstructure:"max_canvases" toml:"max_canvases"`         // repository-wide canvas count guard
	MaxInstances   int `mapstructure:"max_instances" toml:"max_instances"`       // repository-wide element occurrence guard
	MaxVisited     int `mapstructure:"max_visited" toml:"max_visited"`           // absolute visited-node cap per traversal
	MaxTraverseHop int `mapstructure:"max_traverse_hop" toml:"max_traverse_hop"` // hard ceiling on requested max depth
}

// RulesConfig tunes design-rule annotation rendering.
type RulesConfig struct {
	AnnotationRowHeight float64 `mapstructure:"annotation_row_height" toml:"annotation_row_height"` // vertical stacking step per annotation
	AnnotationWidth     float64 `mapstructure:"annotation_width" toml:"annotation_width"`
}

// ImpactConfig tunes impact-diagram layout.
type ImpactConfig struct {
	RadialStep float64 `mapstructure:"radial_step" toml:"radial_step"` // radius increment per depth ring
	CenterX    float64 `mapstructure:"center_x" toml:"center_x"`
	CenterY    float64 `mapstructure:"center_y" toml:"center_y"`
	NodeWidth  float64 `mapstructure:"node_width" toml:"node_width"`
	NodeHeight float64 `mapstructure:"node_height" toml:"node_height"`
}

// Default server port constant
const DefaultServerPort = 5000

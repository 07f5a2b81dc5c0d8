package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/OCAP2/clustermap/pkg/core"
	"github.com/spf13/viper"
)

// ConfigFileName is the file Load looks for inside configDir
const ConfigFileName = "clustermap.cfg.json"

// MemoryConfig holds in-memory storage backend settings
type MemoryConfig struct {
	SnapshotDir      string `json:"snapshotDir" mapstructure:"snapshotDir"`
	CompressSnapshot bool   `json:"compressSnapshot" mapstructure:"compressSnapshot"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	// Path of the database file. Empty keeps the database in memory and
	// dumps it to DumpPath every DumpInterval.
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds Postgres storage backend settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig `json:"postgres" mapstructure:"postgres"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Address   string
	Container string
}

// InfluxConfig holds render statistics sink settings
type InfluxConfig struct {
	Enabled bool
	URL     string
	Token   string
	Org     string
	Bucket  string
}

// MonitorConfig holds status monitor settings
type MonitorConfig struct {
	Interval   time.Duration
	StatusFile string
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	viper.SetEnvPrefix("CLUSTERMAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("environment.touchPrimary", false)

	viper.SetDefault("map.center.lat", 0.0)
	viper.SetDefault("map.center.lng", 0.0)
	viper.SetDefault("map.zoom", 13)
	viper.SetDefault("map.zIndex", 1)
	viper.SetDefault("map.scrollWheelZoom", false)
	viper.SetDefault("map.showCoverageOnHover", false)

	viper.SetDefault("marker.defaultIconUrl", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.snapshotDir", "./snapshots")
	viper.SetDefault("storage.memory.compressSnapshot", true)
	viper.SetDefault("storage.sqlite.path", "./clustermap.db")
	viper.SetDefault("storage.sqlite.dumpPath", "./clustermap.dump.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "clustermap")

	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("server.container", "map")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "clustermap")
	viper.SetDefault("influx.bucket", "map_renders")
	viper.SetDefault("influx.backupPath", "./map_renders.lp.gz")

	viper.SetDefault("monitor.interval", "10s")
	viper.SetDefault("monitor.statusFile", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "clustermap")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetEnvironment returns the device characteristics the map defaults depend on.
func GetEnvironment() Environment {
	return Environment{TouchPrimary: viper.GetBool("environment.touchPrimary")}
}

// GetMapDefaults builds the map defaults from configuration, falling back to
// the built-in defaults for keys that were never set.
func GetMapDefaults() core.MapConfig {
	env := GetEnvironment()
	def := DefaultMapConfig(env)

	if viper.IsSet("map.center.lat") {
		def.Center.Lat = viper.GetFloat64("map.center.lat")
	}
	if viper.IsSet("map.center.lng") {
		def.Center.Lng = viper.GetFloat64("map.center.lng")
	}
	if viper.IsSet("map.zoom") {
		def.Zoom = max(viper.GetInt("map.zoom"), 0)
	}
	if viper.IsSet("map.zIndex") {
		def.ZIndex = viper.GetInt("map.zIndex")
	}
	if viper.IsSet("map.scrollWheelZoom") {
		def.ScrollWheelZoom = viper.GetBool("map.scrollWheelZoom")
	}
	if viper.IsSet("map.dragging") {
		def.Dragging = viper.GetBool("map.dragging")
	}
	if viper.IsSet("map.showCoverageOnHover") {
		def.ShowCoverageOnHover = viper.GetBool("map.showCoverageOnHover")
	}
	return def
}

// GetMarkerDefaults builds the marker defaults from configuration.
func GetMarkerDefaults() core.MarkerConfig {
	def := DefaultMarkerConfig()
	def.IconURL = viper.GetString("marker.defaultIconUrl")
	return def
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			SnapshotDir:      viper.GetString("storage.memory.snapshotDir"),
			CompressSnapshot: viper.GetBool("storage.memory.compressSnapshot"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetServerConfig returns the HTTP API configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address:   viper.GetString("server.address"),
		Container: viper.GetString("server.container"),
	}
}

// GetInfluxConfig returns the render statistics sink configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL:     viper.GetString("influx.url"),
		Token:   viper.GetString("influx.token"),
		Org:     viper.GetString("influx.org"),
		Bucket:  viper.GetString("influx.bucket"),
	}
}

// GetMonitorConfig returns the status monitor configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// Package config loads the daemon's INI configuration (section
// user-settings) with Viper, overlaying environment variables the same
// way the teacher's YAML config does.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TileServer is one entry of a configured tile server priority list.
type TileServer struct {
	Name string
	URL  string
}

// Config holds the daemon's runtime configuration values.
type Config struct {
	// Database
	SQLServer    string
	SQLUser      string
	SQLPasswd    string
	SQLDB        string
	SQLTblNode   string
	SQLTblMap    string
	SQLTblAredn  string

	// Polling
	NodelistNode       string
	NumParallelThreads int
	PollerCycleTime    time.Duration

	// Classifier
	ProtocolThreshold     time.Duration
	ProtocolVersionCutoff string
	ProtocolNightlyCutoff string

	// Map
	MapBrowserTitle     string
	Attribution         string
	MapContact          string
	MapCenterLat        float64
	MapCenterLon        float64
	MapInitialZoom      int
	DistanceUnits       string
	TileServerPriority  []string
	DefaultTileServer   string

	// Output
	WebpageDataDir string

	// Ops surface (ambient, not in the original INI spec but needed to
	// run the metrics/health server)
	OpsListenAddr string
}

// Load reads the INI config at path (section user-settings) via Viper,
// applying documented defaults and allowing environment variables to
// override any key (dots replaced with underscores, matching the
// teacher's convention).
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("ini")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(".")
		v.AddConfigPath("..")
	}

	v.SetDefault("user-settings.sql_db_tbl_node", "nodes")
	v.SetDefault("user-settings.sql_db_tbl_map", "map_stats")
	v.SetDefault("user-settings.sql_db_tbl_aredn", "aredn_info")
	v.SetDefault("user-settings.numParallelThreads", 60)
	v.SetDefault("user-settings.pollerCycleTime", 30)
	v.SetDefault("user-settings.protocol_threshold_seconds", 604800)
	v.SetDefault("user-settings.protocol_version_cutoff", "3.25.5.0")
	v.SetDefault("user-settings.protocol_nightly_cutoff", "20250507-aaaaaaaa")
	v.SetDefault("user-settings.map_initial_zoom_level", 10)
	v.SetDefault("user-settings.distanceUnits", "miles")
	v.SetDefault("user-settings.DefaultTileServer", "inet")
	v.SetDefault("user-settings.webpageDataDir", "./data")
	v.SetDefault("user-settings.ops_listen_addr", ":9090")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	get := func(key string) string {
		return unquote(v.GetString("user-settings." + key))
	}

	cfg := Config{
		SQLServer:   get("sql_server"),
		SQLUser:     get("sql_user"),
		SQLPasswd:   get("sql_passwd"),
		SQLDB:       get("sql_db"),
		SQLTblNode:  get("sql_db_tbl_node"),
		SQLTblMap:   get("sql_db_tbl_map"),
		SQLTblAredn: get("sql_db_tbl_aredn"),

		NodelistNode:       get("nodelistNode"),
		NumParallelThreads: v.GetInt("user-settings.numParallelThreads"),
		PollerCycleTime:    time.Duration(v.GetInt("user-settings.pollerCycleTime")) * time.Minute,

		ProtocolThreshold:     time.Duration(v.GetInt("user-settings.protocol_threshold_seconds")) * time.Second,
		ProtocolVersionCutoff: get("protocol_version_cutoff"),
		ProtocolNightlyCutoff: get("protocol_nightly_cutoff"),

		MapBrowserTitle: get("map_browserTitle"),
		Attribution:     get("attribution"),
		MapContact:      get("mapContact"),
		MapInitialZoom:  v.GetInt("user-settings.map_initial_zoom_level"),
		DistanceUnits:   get("distanceUnits"),
		DefaultTileServer: get("DefaultTileServer"),
		WebpageDataDir:  get("webpageDataDir"),
		OpsListenAddr:   get("ops_listen_addr"),
	}

	// The documented key names use Python dict-subscript syntax
	// (map_center_coordinates['lat']) rather than a nested INI section;
	// treated here as literal key text, same as configparser would.
	cfg.MapCenterLat = v.GetFloat64(`user-settings.map_center_coordinates['lat']`)
	cfg.MapCenterLon = v.GetFloat64(`user-settings.map_center_coordinates['lon']`)
	cfg.TileServerPriority = parseList(v.GetString("user-settings.tileServerPriority"))

	if cfg.PollerCycleTime <= 0 {
		cfg.PollerCycleTime = time.Minute
	}
	if cfg.NumParallelThreads <= 0 {
		cfg.NumParallelThreads = 60
	}

	return cfg, nil
}

// unquote strips a single layer of surrounding single or double quotes, a
// convention the INI format allows per spec.md and configparser honours.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// parseList accepts either a JSON array (the documented "JSON-or-Python
// list" shape) or a plain comma-separated fallback.
func parseList(raw string) []string {
	raw = strings.TrimSpace(unquote(raw))
	if raw == "" {
		return nil
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = unquote(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Roster     RosterConfig
	Embedder   EmbedderConfig
	Face       FaceConfig
	Thresholds ThresholdsConfig
}

type AppConfig struct {
	Env string // "development" (default) or "production"
}

// IsProduction reports whether the service runs in production mode.
// Simulation mode is refused in production regardless of FACE_SIMULATE.
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RosterConfig struct {
	MySQLDSN string // legacy roster MySQL DSN for `muster import` (optional)
}

type EmbedderConfig struct {
	URL       string // defaults to http://localhost:8000
	Model     string // embedding model served by the embedder (default Facenet512)
	Dim       int    // embedding dimensionality (default 512)
	TimeoutMs int    // per-request timeout in milliseconds (default 15000)
}

type FaceConfig struct {
	Metric               string  // "cosine" (default), "euclidean", "euclidean_l2"
	Threshold            float64 // 0 means: look up thresholds.yaml for the configured model/metric
	MaxEuclideanDistance float64 // normalization constant for euclidean confidence (default 4.0)
	Simulate             bool    // FACE_SIMULATE, ignored in production
}

type ThresholdsConfig struct {
	Models map[string]map[string]float64 `yaml:"models"`
}

// fallbackThreshold is used when neither FACE_THRESHOLD nor thresholds.yaml
// covers the configured model/metric pair.
const fallbackThreshold = 0.6

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a default.
func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	return &Config{
		App: AppConfig{
			Env: envString("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Roster: RosterConfig{
			MySQLDSN: os.Getenv("ROSTER_MYSQL_DSN"),
		},
		Embedder: EmbedderConfig{
			URL:       envString("EMBEDDER_URL", "http://localhost:8000"),
			Model:     envString("EMBEDDER_MODEL", "Facenet512"),
			Dim:       envInt("EMBEDDER_DIM", 512),
			TimeoutMs: envInt("EMBEDDER_TIMEOUT_MS", 15000),
		},
		Face: FaceConfig{
			Metric:               envString("FACE_METRIC", "cosine"),
			Threshold:            envFloat("FACE_THRESHOLD", 0),
			MaxEuclideanDistance: envFloat("FACE_MAX_EUCLIDEAN_DISTANCE", 4.0),
			Simulate:             os.Getenv("FACE_SIMULATE") == "true",
		},
		Thresholds: thresholds,
	}
}

// MatchThreshold resolves the effective match threshold: the FACE_THRESHOLD
// override wins, then the embedded per-model table, then a conservative
// fallback.
func (c *Config) MatchThreshold() float64 {
	if c.Face.Threshold > 0 {
		return c.Face.Threshold
	}
	if metrics, ok := c.Thresholds.Models[c.Embedder.Model]; ok {
		if t, ok := metrics[c.Face.Metric]; ok && t > 0 {
			return t
		}
	}
	return fallbackThreshold
}

// SimulationEnabled reports whether simulated matching may be used.
// The flag is ignored in production builds.
func (c *Config) SimulationEnabled() bool {
	return c.Face.Simulate && !c.App.IsProduction()
}

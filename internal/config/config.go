package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Cluster   ClusterConfig   `yaml:"cluster" mapstructure:"cluster"`
	Interpret InterpretConfig `yaml:"interpret" mapstructure:"interpret"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	OSM       OSMConfig       `yaml:"osm" mapstructure:"osm"`
	// PathsFile is the INI file holding the [Paths] section.
	PathsFile string `yaml:"paths_file" mapstructure:"paths_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	SessionTTLMins int      `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// DataConfig describes the input tables.
type DataConfig struct {
	IDColumn       string   `yaml:"id_column" mapstructure:"id_column"`
	GeometryColumn string   `yaml:"geometry_column" mapstructure:"geometry_column"`
	Encoding       string   `yaml:"encoding" mapstructure:"encoding"`
	Exclude        []string `yaml:"exclude" mapstructure:"exclude"`
	SRID           int      `yaml:"srid" mapstructure:"srid"`
}

// ClusterConfig configures the recommender and the classifier.
type ClusterConfig struct {
	Family           string `yaml:"family" mapstructure:"family"`
	MinClusters      int    `yaml:"min_clusters" mapstructure:"min_clusters"`
	MaxClusters      int    `yaml:"max_clusters" mapstructure:"max_clusters"`
	Repeat           int    `yaml:"repeat" mapstructure:"repeat"`
	NInit            int    `yaml:"n_init" mapstructure:"n_init"`
	MaxIter          int    `yaml:"max_iter" mapstructure:"max_iter"`
	RandomState      int64  `yaml:"random_state" mapstructure:"random_state"`
	Standardize      bool   `yaml:"standardize" mapstructure:"standardize"`
	DefaultClusters  int    `yaml:"default_clusters" mapstructure:"default_clusters"`
	Parallelism      int    `yaml:"parallelism" mapstructure:"parallelism"`
	SilhouetteSample int    `yaml:"silhouette_sample" mapstructure:"silhouette_sample"`
}

// InterpretConfig tunes the cluster interpreter.
type InterpretConfig struct {
	SDWeight      float64 `yaml:"sd_weight" mapstructure:"sd_weight"`
	EntropyWeight float64 `yaml:"entropy_weight" mapstructure:"entropy_weight"`
	Bins          int     `yaml:"bins" mapstructure:"bins"`
	LOFNeighbors  int     `yaml:"lof_neighbors" mapstructure:"lof_neighbors"`
	LOFThreshold  float64 `yaml:"lof_threshold" mapstructure:"lof_threshold"`
	IQRMultiplier float64 `yaml:"iqr_multiplier" mapstructure:"iqr_multiplier"`
	TopN          int     `yaml:"top_n" mapstructure:"top_n"`
}

// ExportConfig names the export artefacts.
type ExportConfig struct {
	CSVName    string `yaml:"csv_name" mapstructure:"csv_name"`
	LayerName  string `yaml:"layer_name" mapstructure:"layer_name"`
	ReportName string `yaml:"report_name" mapstructure:"report_name"`
}

// OSMConfig configures the Overpass client.
type OSMConfig struct {
	Endpoint          string  `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("URBANTEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.session_ttl_mins", 120)
	v.SetDefault("server.max_upload_bytes", 512<<20)
	v.SetDefault("data.id_column", "uID")
	v.SetDefault("data.geometry_column", "geometry")
	v.SetDefault("data.encoding", "utf-8")
	v.SetDefault("data.exclude", []string{})
	v.SetDefault("data.srid", 2039)
	v.SetDefault("cluster.family", "kmeans")
	v.SetDefault("cluster.min_clusters", 1)
	v.SetDefault("cluster.max_clusters", 15)
	v.SetDefault("cluster.repeat", 5)
	v.SetDefault("cluster.n_init", 13)
	v.SetDefault("cluster.max_iter", 300)
	v.SetDefault("cluster.random_state", 42)
	v.SetDefault("cluster.standardize", false)
	v.SetDefault("cluster.default_clusters", 7)
	v.SetDefault("cluster.parallelism", 4)
	v.SetDefault("cluster.silhouette_sample", 5000)
	v.SetDefault("interpret.sd_weight", 0.5)
	v.SetDefault("interpret.entropy_weight", 0.5)
	v.SetDefault("interpret.bins", 10)
	v.SetDefault("interpret.lof_neighbors", 20)
	v.SetDefault("interpret.lof_threshold", 1.5)
	v.SetDefault("interpret.iqr_multiplier", 1.5)
	v.SetDefault("interpret.top_n", 10)
	v.SetDefault("export.csv_name", "clusters.csv")
	v.SetDefault("export.layer_name", "clusters")
	v.SetDefault("export.report_name", "report.xlsx")
	v.SetDefault("osm.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("osm.timeout_secs", 180)
	v.SetDefault("osm.requests_per_second", 1)
	v.SetDefault("osm.max_attempts", 3)
	v.SetDefault("paths_file", "config.ini")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

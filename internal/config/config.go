// Package config loads the archive configuration document using Viper,
// following the same config-file-plus-environment-override precedence as
// the teacher module's cli/root.go initConfig, generalized from one flat
// server config to the nested archive/object-store/catalog/logging
// structure this domain needs.
package config

import (
	"fmt"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/knmi/sdsrules/pkg/errs"
)

// ObjectStoreConfig configures the S3-compatible long-term object store.
type ObjectStoreConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// CatalogConfig configures one named metadata collection.
type CatalogConfig struct {
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// GridArchiveConfig configures the federated, PID-assigning remote archive.
type GridArchiveConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Zone      string `mapstructure:"zone"`
	KeyPrefix string `mapstructure:"key_prefix"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig configures internal/obslog.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// WaveformToolsConfig names the container images run by
// internal/collab.DockerWaveformAnalyzer.
type WaveformToolsConfig struct {
	QualityImage string `mapstructure:"quality_image"`
	PPSDImage    string `mapstructure:"ppsd_image"`
	PruneImage   string `mapstructure:"prune_image"`
	ArchiveMount string `mapstructure:"archive_mount"`
}

// Config is the top-level archive configuration document, keyed the same
// way as the RuleMap/RuleSequence JSON documents but loaded from YAML (or
// any format Viper supports) rather than hand-parsed JSON, since this one
// is operator-edited rather than generated.
type Config struct {
	DataDir            string               `mapstructure:"data_dir"`
	GridRoot           string               `mapstructure:"grid_root"`
	InventoryServiceURL string              `mapstructure:"inventory_service_url"`
	DeletionDBPath     string               `mapstructure:"deletion_db_path"`
	DefaultRuleTimeout time.Duration        `mapstructure:"default_rule_timeout"`
	ObjectStore        ObjectStoreConfig    `mapstructure:"object_store"`
	Catalogs           []CatalogConfig      `mapstructure:"catalogs"`
	GridArchive        GridArchiveConfig    `mapstructure:"grid_archive"`
	Logging            LoggingConfig        `mapstructure:"logging"`
	WaveformTools      WaveformToolsConfig  `mapstructure:"waveform_tools"`
	PostgresDSN        string               `mapstructure:"postgres_dsn"`
	RedisURL           string               `mapstructure:"redis_url"`
	MetricsAddr        string               `mapstructure:"metrics_addr"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("default_rule_timeout", 30*time.Second)
	v.SetDefault("deletion_db_path", "./deletion.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("object_store.use_path_style", true)
}

// Load reads the configuration document at path (or, if path is empty,
// searches the working directory and the user's home directory for
// "sdsrules.yaml"), applying SDSRULES_-prefixed environment variable
// overrides for every key.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("SDSRULES")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := homedir.Dir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("sdsrules")
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("%w: %s: %v", errs.ErrConfigNotFound, path, err)
		}
		// no config file found via search path: defaults + env only
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", errs.ErrConfigNotFound, err)
	}
	return &cfg, nil
}

package config

// Package config provides a reusable loader for the data-availability
// node's configuration files and environment variables. It is versioned so
// that applications can depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"synnergy-da/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a data-availability node. It
// mirrors the structure of the YAML files under config/.
type Config struct {
	Replica struct {
		CanisterStorageThreshold int           `mapstructure:"canister_storage_threshold" json:"canister_storage_threshold"`
		QueryResponseSize        int           `mapstructure:"query_response_size" json:"query_response_size"`
		WriterReplicas           []string      `mapstructure:"writer_replicas" json:"writer_replicas"`
		Owner                    string        `mapstructure:"owner" json:"owner"`
		SignerNotifyTimeout      time.Duration `mapstructure:"signer_notify_timeout" json:"signer_notify_timeout"`
	} `mapstructure:"replica" json:"replica"`

	Signer struct {
		ConfirmationBatchSize int      `mapstructure:"confirmation_batch_size" json:"confirmation_batch_size"`
		ConfirmationLiveTime  uint32   `mapstructure:"confirmation_live_time" json:"confirmation_live_time"`
		WriterReplicas        []string `mapstructure:"writer_replicas" json:"writer_replicas"`
		Owner                 string   `mapstructure:"owner" json:"owner"`
	} `mapstructure:"signer" json:"signer"`

	Client struct {
		ReplicaNum       int           `mapstructure:"replica_num" json:"replica_num"`
		CollectionSize   int           `mapstructure:"collection_size" json:"collection_size"`
		ChunkSize        int           `mapstructure:"chunk_size" json:"chunk_size"`
		WriteAttempts    int           `mapstructure:"write_attempts" json:"write_attempts"`
		WriteBackoff     time.Duration `mapstructure:"write_backoff" json:"write_backoff"`
		BlobLiveTime     time.Duration `mapstructure:"blob_live_time" json:"blob_live_time"`
		ReuploadScan     time.Duration `mapstructure:"reupload_scan" json:"reupload_scan"`
		ReuploadRetry    time.Duration `mapstructure:"reupload_retry" json:"reupload_retry"`
		SpillDir         string        `mapstructure:"spill_dir" json:"spill_dir"`
		ReadPollInterval time.Duration `mapstructure:"read_poll_interval" json:"read_poll_interval"`
	} `mapstructure:"client" json:"client"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the DA_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("DA_ENV", ""))
}

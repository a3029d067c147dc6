package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "LUMIERE"

// ConfigFileEnv names the environment variable holding an explicit config file path.
const ConfigFileEnv = "LUMIERE_CONFIG_FILE"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("worker.init_retries", 0)
	v.SetDefault("worker.init_retry_delay", "5s")
	v.SetDefault("worker.progress_buffer", 16)

	v.SetDefault("stream.poll_interval", "500ms")
	v.SetDefault("stream.max_missed_polls", 5)
	v.SetDefault("stream.max_poll_errors", 10)
	v.SetDefault("stream.write_timeout", "10s")

	v.SetDefault("generation.output_dir", "logs/latest/output")
	v.SetDefault("generation.result_url_prefix", "/api/image/")
	v.SetDefault("generation.positive_prompt", "")
	v.SetDefault("generation.negative_prompt", "")
	v.SetDefault("generation.guidance_scale", 7.0)
	v.SetDefault("generation.quality_steps", map[string]int{
		"low":    20,
		"medium": 30,
		"high":   40,
	})
	v.SetDefault("generation.aspect_ratios", map[string][]int{
		"1:1":  {1024, 1024},
		"3:4":  {896, 1152},
		"4:3":  {1152, 896},
		"9:16": {768, 1344},
		"16:9": {1344, 768},
	})
	v.SetDefault("generation.model_path", "")
	v.SetDefault("generation.vae_file", "")
	v.SetDefault("generation.apply_lora", []string{})
	v.SetDefault("generation.apply_embeddings", []string{})

	v.SetDefault("pipeline.command", "python3")
	v.SetDefault("pipeline.args", []string{"-u", "pipeline/serve.py"})
	v.SetDefault("pipeline.workdir", "")
	v.SetDefault("pipeline.ready_timeout", "0s")

	v.SetDefault("enhancer.enabled", false)
	v.SetDefault("enhancer.gemini_api_key", "")
	v.SetDefault("enhancer.model", "gemini-2.0-flash")
	v.SetDefault("enhancer.system_prompt", "")
	v.SetDefault("enhancer.translator_model", "")
	v.SetDefault("enhancer.translator_system_prompt", "")
	v.SetDefault("enhancer.temperature", 1.5)
}

package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Worker     WorkerConfig     `mapstructure:"worker"     validate:"required"`
	Stream     StreamConfig     `mapstructure:"stream"     validate:"required"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"   validate:"required"`
	Enhancer   EnhancerConfig   `mapstructure:"enhancer"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// WorkerConfig controls the single generation worker.
type WorkerConfig struct {
	// InitRetries is the number of additional attempts made when the generator
	// fails to initialize. Zero keeps the worker fatal after the first failure.
	InitRetries    int           `mapstructure:"init_retries"     validate:"gte=0"`
	InitRetryDelay time.Duration `mapstructure:"init_retry_delay" validate:"gt=0"`
	ProgressBuffer int           `mapstructure:"progress_buffer"  validate:"gt=0"`
}

// StreamConfig controls the per-connection status push loop.
type StreamConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"    validate:"gt=0"`
	MaxMissedPolls int           `mapstructure:"max_missed_polls" validate:"gte=0"`
	MaxPollErrors  int           `mapstructure:"max_poll_errors"  validate:"gte=0"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"    validate:"gt=0"`
}

// GenerationConfig holds the options exposed to callers and the prompt
// decoration applied to every request.
type GenerationConfig struct {
	OutputDir       string           `mapstructure:"output_dir"        validate:"required"`
	ResultURLPrefix string           `mapstructure:"result_url_prefix" validate:"required"`
	PositivePrompt  string           `mapstructure:"positive_prompt"`
	NegativePrompt  string           `mapstructure:"negative_prompt"`
	GuidanceScale   float64          `mapstructure:"guidance_scale"    validate:"gte=0"`
	QualitySteps    map[string]int   `mapstructure:"quality_steps"     validate:"required,min=1,dive,gt=0"`
	AspectRatios    map[string][]int `mapstructure:"aspect_ratios"     validate:"required,min=1,dive,len=2,dive,gt=0"`
	ModelPath       string           `mapstructure:"model_path"`
	VAEFile         string           `mapstructure:"vae_file"`
	ApplyLoRA       []string         `mapstructure:"apply_lora"`
	ApplyEmbeddings []string         `mapstructure:"apply_embeddings"`
}

// PipelineConfig describes the external process that hosts the diffusion model.
type PipelineConfig struct {
	Command      string        `mapstructure:"command"       validate:"required"`
	Args         []string      `mapstructure:"args"`
	WorkDir      string        `mapstructure:"workdir"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout" validate:"gte=0"`
}

// EnhancerConfig contains the optional Gemini prompt enhancement settings.
type EnhancerConfig struct {
	Enabled                bool    `mapstructure:"enabled"`
	GeminiAPIKey           string  `mapstructure:"gemini_api_key"           validate:"required_if=Enabled true"`
	Model                  string  `mapstructure:"model"                    validate:"required_if=Enabled true"`
	SystemPrompt           string  `mapstructure:"system_prompt"`
	TranslatorModel        string  `mapstructure:"translator_model"`
	TranslatorSystemPrompt string  `mapstructure:"translator_system_prompt"`
	Temperature            float32 `mapstructure:"temperature"              validate:"gte=0,lte=2"`
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Audio       AudioConfig       `yaml:"audio"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Translator  TranslatorConfig  `yaml:"translator"`
	Enhancement EnhancementConfig `yaml:"enhancement"`
	History     HistoryConfig     `yaml:"history"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AudioConfig struct {
	SourceCommand    string  `yaml:"source_command"`
	SampleRate       int     `yaml:"sample_rate"`
	Channels         int     `yaml:"channels"`
	BufferDuration   float64 `yaml:"buffer_duration_s"`
	ChunkDurationMS  int     `yaml:"chunk_duration_ms"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	SilenceDuration  float64 `yaml:"silence_duration_s"`
	Normalize        bool    `yaml:"normalize"`
}

type TranscriberConfig struct {
	Mode      string `yaml:"mode"` // mock, exec
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
}

type TranslatorConfig struct {
	Mode           string `yaml:"mode"` // mock, exec
	Command        string `yaml:"command"`
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
	MaxLength      int    `yaml:"max_length"`
}

type EnhancementConfig struct {
	Enabled            bool    `yaml:"enabled"`
	EnhanceTranslation bool    `yaml:"enhance_translation"`
	Mode               string  `yaml:"mode"` // mock, ollama, exec
	Endpoint           string  `yaml:"endpoint"`
	Command            string  `yaml:"command"`
	Model              string  `yaml:"model"`
	MaxTokens          int     `yaml:"max_tokens"`
	Temperature        float64 `yaml:"temperature"`
}

type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
}

func Default() Config {
	return Config{
		RuntimeName: "habla-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Audio: AudioConfig{
			SourceCommand:    "arecord -q -f S16_LE -r 16000 -c 1 -t raw -",
			SampleRate:       16000,
			Channels:         1,
			BufferDuration:   30,
			ChunkDurationMS:  100,
			SilenceThreshold: 0.01,
			SilenceDuration:  2,
			Normalize:        true,
		},
		Transcriber: TranscriberConfig{
			Mode:     "mock",
			Language: "es",
		},
		Translator: TranslatorConfig{
			Mode:           "mock",
			SourceLanguage: "es",
			TargetLanguage: "en",
			MaxLength:      512,
		},
		Enhancement: EnhancementConfig{
			Enabled:            false,
			EnhanceTranslation: true,
			Mode:               "mock",
			Endpoint:           "http://localhost:11434",
			Model:              "qwen2.5:3b",
			MaxTokens:          256,
			Temperature:        0.1,
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       "./data/habla-history.db",
			MaxEntries: 100,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "HABLA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "HABLA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "HABLA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "HABLA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "HABLA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "HABLA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "HABLA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "HABLA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "HABLA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "HABLA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "HABLA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "HABLA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "HABLA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "HABLA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "HABLA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "HABLA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Audio.SourceCommand, "HABLA_AUDIO_SOURCE_COMMAND")
	overrideInt(&cfg.Audio.SampleRate, "HABLA_AUDIO_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "HABLA_AUDIO_CHANNELS")
	overrideFloat(&cfg.Audio.BufferDuration, "HABLA_AUDIO_BUFFER_DURATION_S")
	overrideInt(&cfg.Audio.ChunkDurationMS, "HABLA_AUDIO_CHUNK_DURATION_MS")
	overrideFloat(&cfg.Audio.SilenceThreshold, "HABLA_AUDIO_SILENCE_THRESHOLD")
	overrideFloat(&cfg.Audio.SilenceDuration, "HABLA_AUDIO_SILENCE_DURATION_S")
	overrideBool(&cfg.Audio.Normalize, "HABLA_AUDIO_NORMALIZE")
	overrideString(&cfg.Transcriber.Mode, "HABLA_TRANSCRIBER_MODE")
	overrideString(&cfg.Transcriber.Command, "HABLA_TRANSCRIBER_COMMAND")
	overrideString(&cfg.Transcriber.ModelPath, "HABLA_TRANSCRIBER_MODEL_PATH")
	overrideString(&cfg.Transcriber.Language, "HABLA_TRANSCRIBER_LANGUAGE")
	overrideString(&cfg.Translator.Mode, "HABLA_TRANSLATOR_MODE")
	overrideString(&cfg.Translator.Command, "HABLA_TRANSLATOR_COMMAND")
	overrideString(&cfg.Translator.SourceLanguage, "HABLA_TRANSLATOR_SOURCE_LANGUAGE")
	overrideString(&cfg.Translator.TargetLanguage, "HABLA_TRANSLATOR_TARGET_LANGUAGE")
	overrideInt(&cfg.Translator.MaxLength, "HABLA_TRANSLATOR_MAX_LENGTH")
	overrideBool(&cfg.Enhancement.Enabled, "HABLA_ENHANCEMENT_ENABLED")
	overrideBool(&cfg.Enhancement.EnhanceTranslation, "HABLA_ENHANCEMENT_ENHANCE_TRANSLATION")
	overrideString(&cfg.Enhancement.Mode, "HABLA_ENHANCEMENT_MODE")
	overrideString(&cfg.Enhancement.Endpoint, "HABLA_ENHANCEMENT_ENDPOINT")
	overrideString(&cfg.Enhancement.Command, "HABLA_ENHANCEMENT_COMMAND")
	overrideString(&cfg.Enhancement.Model, "HABLA_ENHANCEMENT_MODEL")
	overrideInt(&cfg.Enhancement.MaxTokens, "HABLA_ENHANCEMENT_MAX_TOKENS")
	overrideFloat(&cfg.Enhancement.Temperature, "HABLA_ENHANCEMENT_TEMPERATURE")
	overrideBool(&cfg.History.Enabled, "HABLA_HISTORY_ENABLED")
	overrideString(&cfg.History.Path, "HABLA_HISTORY_PATH")
	overrideInt(&cfg.History.MaxEntries, "HABLA_HISTORY_MAX_ENTRIES")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return errors.New("audio.channels must be positive")
	}
	if cfg.Audio.BufferDuration <= 0 {
		return errors.New("audio.buffer_duration_s must be positive")
	}
	if cfg.Audio.ChunkDurationMS <= 0 {
		return errors.New("audio.chunk_duration_ms must be positive")
	}
	if cfg.Audio.SilenceThreshold < 0 {
		return errors.New("audio.silence_threshold must be >= 0")
	}
	if cfg.Audio.SilenceDuration <= 0 {
		return errors.New("audio.silence_duration_s must be positive")
	}
	switch cfg.Transcriber.Mode {
	case "mock", "exec":
	default:
		return errors.New("transcriber.mode must be one of mock|exec")
	}
	if cfg.Transcriber.Mode == "exec" && cfg.Transcriber.Command == "" {
		return errors.New("transcriber.command must be set when mode=exec")
	}
	if cfg.Transcriber.Language == "" {
		return errors.New("transcriber.language must not be empty")
	}
	switch cfg.Translator.Mode {
	case "mock", "exec":
	default:
		return errors.New("translator.mode must be one of mock|exec")
	}
	if cfg.Translator.Mode == "exec" && cfg.Translator.Command == "" {
		return errors.New("translator.command must be set when mode=exec")
	}
	if cfg.Translator.MaxLength <= 0 {
		return errors.New("translator.max_length must be positive")
	}
	if cfg.Enhancement.Enabled {
		switch cfg.Enhancement.Mode {
		case "mock", "ollama", "exec":
		default:
			return errors.New("enhancement.mode must be one of mock|ollama|exec")
		}
		if cfg.Enhancement.Mode == "ollama" && cfg.Enhancement.Endpoint == "" {
			return errors.New("enhancement.endpoint must be set when mode=ollama")
		}
		if cfg.Enhancement.Mode == "exec" && cfg.Enhancement.Command == "" {
			return errors.New("enhancement.command must be set when mode=exec")
		}
		if cfg.Enhancement.MaxTokens < 0 {
			return errors.New("enhancement.max_tokens must be >= 0")
		}
	}
	if cfg.History.Enabled {
		if cfg.History.Path == "" {
			return errors.New("history.path must not be empty when history is enabled")
		}
		if cfg.History.MaxEntries <= 0 {
			return errors.New("history.max_entries must be >= 1")
		}
	}
	return nil
}

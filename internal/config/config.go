package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "VOICEMEMO"
	EnvConfig  = "VOICEMEMO_CONFIG"
	configName = "voicememo"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Upload  UploadConfig  `mapstructure:"upload" validate:"required"`
	Capture CaptureConfig `mapstructure:"capture" validate:"required"`
	Session SessionConfig `mapstructure:"session" validate:"required"`
	Log     LogConfig     `mapstructure:"log" validate:"required"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `mapstructure:"allowed_origins" validate:"min=1"`
}

type UploadConfig struct {
	Endpoint  string `mapstructure:"endpoint" validate:"required,url"`
	Method    string `mapstructure:"method" validate:"oneof=POST PUT"`
	UserAgent string `mapstructure:"user_agent"`
}

type CaptureConfig struct {
	Mode        string `mapstructure:"mode" validate:"oneof=browser ffmpeg"`
	FFmpegPath  string `mapstructure:"ffmpeg_path" validate:"required_if=Mode ffmpeg"`
	InputFormat string `mapstructure:"input_format"`
	InputDevice string `mapstructure:"input_device"`
	MIMEType    string `mapstructure:"mime_type" validate:"required"`
}

type SessionConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("upload.endpoint", "http://localhost:8000/upload")
	v.SetDefault("upload.method", "POST")
	v.SetDefault("upload.user_agent", "voicememo/1.0")

	v.SetDefault("capture.mode", "browser")
	v.SetDefault("capture.ffmpeg_path", "ffmpeg")
	v.SetDefault("capture.input_format", "alsa")
	v.SetDefault("capture.input_device", "default")
	v.SetDefault("capture.mime_type", "audio/webm;codecs=opus")

	v.SetDefault("session.tick_interval", "1s")
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.cleanup_interval", "1m")

	v.SetDefault("log.level", "info")
}

// Load reads an optional YAML file and applies VOICEMEMO_* env overrides.
// An explicit path (argument or VOICEMEMO_CONFIG) must exist; otherwise
// ./voicememo.yaml is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

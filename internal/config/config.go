package config

import (
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Chat    ChatConfig
	Upload  UploadConfig
	Logging LoggingConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string        `validate:"required"`
	AllowedOrigins  []string      `validate:"min=1,dive,required"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// AllowsAnyOrigin 表示是否允许任意来源。
func (c ServerConfig) AllowsAnyOrigin() bool {
	return lo.Contains(c.AllowedOrigins, "*")
}

// ChatConfig 描述实时通道相关配置。零值表示不限制。
type ChatConfig struct {
	OutboxSize      int           `validate:"gt=0"`
	MaxMessageBytes int64         `validate:"gte=0"`
	PongWait        time.Duration `validate:"gte=0"`
	PingInterval    time.Duration `validate:"gte=0"`
	WriteTimeout    time.Duration `validate:"gte=0"`
	AllowRename     bool
}

// UploadConfig 描述上传服务配置。
type UploadConfig struct {
	Dir           string `validate:"required"`
	MaxBytes      int64  `validate:"gte=0"`
	PublicBaseURL string `validate:"omitempty,url"`
}

// LoggingConfig 描述日志输出配置。
type LoggingConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json console"`
}

// environment 是环境变量的平铺映射。
type environment struct {
	Port            string        `env:"PORT,default=3000"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	OutboxSize      int           `env:"OUTBOX_SIZE,default=64"`
	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES,default=0"`
	PongWait        time.Duration `env:"WS_PONG_WAIT,default=0s"`
	PingInterval    time.Duration `env:"WS_PING_INTERVAL,default=0s"`
	WriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT,default=0s"`
	AllowRename     bool          `env:"ALLOW_RENAME,default=true"`

	UploadDir      string `env:"UPLOAD_DIR,default=uploads"`
	UploadMaxBytes int64  `env:"UPLOAD_MAX_BYTES,default=0"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=console"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var raw environment
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return fromEnvironment(raw)
}

func fromEnvironment(raw environment) (*Config, error) {
	server, err := loadServerConfig(raw)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: server,
		Chat: ChatConfig{
			OutboxSize:      raw.OutboxSize,
			MaxMessageBytes: raw.MaxMessageBytes,
			PongWait:        raw.PongWait,
			PingInterval:    raw.PingInterval,
			WriteTimeout:    raw.WriteTimeout,
			AllowRename:     raw.AllowRename,
		},
		Upload: UploadConfig{
			Dir:           strings.TrimSpace(raw.UploadDir),
			MaxBytes:      raw.UploadMaxBytes,
			PublicBaseURL: strings.TrimRight(strings.TrimSpace(raw.PublicBaseURL), "/"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(strings.TrimSpace(raw.LogLevel)),
			Format: strings.ToLower(strings.TrimSpace(raw.LogFormat)),
		},
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	// ping 间隔必须短于读超时。
	if cfg.Chat.PongWait > 0 && cfg.Chat.PingInterval >= cfg.Chat.PongWait {
		return nil, fmt.Errorf("invalid configuration: WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", cfg.Chat.PingInterval, cfg.Chat.PongWait)
	}
	return cfg, nil
}

// loadServerConfig 解析服务器监听地址与允许的来源。
func loadServerConfig(raw environment) (ServerConfig, error) {
	port := strings.TrimSpace(raw.Port)
	if port == "" {
		port = "3000"
	}

	var addr string
	switch {
	case strings.Contains(port, ":"):
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		addr = port
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		addr = ":" + port
	}

	origins := lo.Compact(lo.Map(strings.Split(raw.AllowedOrigins, ","), func(item string, _ int) string {
		return strings.TrimRight(strings.TrimSpace(item), "/")
	}))

	return ServerConfig{
		Addr:            addr,
		AllowedOrigins:  origins,
		ShutdownTimeout: raw.ShutdownTimeout,
	}, nil
}

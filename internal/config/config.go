package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string   `yaml:"listenAddr"`
	Port              string   `yaml:"port"`
	DataDir           string   `yaml:"dataDir"`
	DefaultNamespace  string   `yaml:"defaultNamespace"`
	SessionSecret     string   `yaml:"sessionSecret"`
	GinMode           string   `yaml:"ginMode"`
	AllowedOrigins    []string `yaml:"allowedOrigins"`
	StorageQuotaBytes int64    `yaml:"storageQuotaBytes"`
	ImageMaxBytes     int64    `yaml:"imageMaxBytes"`
	ImageMaxWidth     int      `yaml:"imageMaxWidth"`
	ImageMaxHeight    int      `yaml:"imageMaxHeight"`
	ImageQuality      int      `yaml:"imageQuality"`
	PersistenceMode   string   `yaml:"persistenceMode"`
	LogLevel          string   `yaml:"logLevel"`
	AdminUserName     string   `yaml:"adminUserName"`
	AdminPassword     string   `yaml:"adminPassword"`
}

// ConfigFileEnv 指向可选的 YAML 配置文件，环境变量优先于文件中的值。
const ConfigFileEnv = "WECHATPAD_CONFIG"

// Load 读取可选的 YAML 文件，再用环境变量覆盖，并为缺失项提供安全的默认值。
func Load() (AppConfig, error) {
	var cfg AppConfig
	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.ListenAddr, "LISTEN_ADDR")
	overrideString(&cfg.DataDir, "DATA_DIR")
	overrideString(&cfg.DefaultNamespace, "DEFAULT_NAMESPACE")
	overrideString(&cfg.SessionSecret, "SESSION_SECRET")
	overrideString(&cfg.GinMode, "GIN_MODE")
	overrideString(&cfg.PersistenceMode, "PERSISTENCE_MODE")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.AdminUserName, "ADMIN_USER_NAME")
	overrideString(&cfg.AdminPassword, "ADMIN_PASSWORD")
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if err := overrideInt64(&cfg.StorageQuotaBytes, "STORAGE_QUOTA_BYTES"); err != nil {
		return cfg, err
	}
	if err := overrideInt64(&cfg.ImageMaxBytes, "IMAGE_MAX_BYTES"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.ImageMaxWidth, "IMAGE_MAX_WIDTH"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.ImageMaxHeight, "IMAGE_MAX_HEIGHT"); err != nil {
		return cfg, err
	}
	if err := overrideInt(&cfg.ImageQuality, "IMAGE_QUALITY"); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = fmt.Sprintf(":%s", cfg.Port)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = "wechatpad-dev-secret"
	}
	if cfg.GinMode == "" {
		cfg.GinMode = "release"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if cfg.ImageQuality <= 0 || cfg.ImageQuality > 100 {
		cfg.ImageQuality = 80
	}
	if cfg.ImageMaxWidth <= 0 {
		cfg.ImageMaxWidth = 1200
	}
	if cfg.PersistenceMode == "" {
		cfg.PersistenceMode = "local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func overrideInt64(dst *int64, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func overrideInt(dst *int, key string) error {
	var n int64
	if err := overrideInt64(&n, key); err != nil {
		return err
	}
	if n != 0 {
		*dst = int(n)
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

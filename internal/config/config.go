package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Engine   EngineConfig
	Delivery DeliveryConfig
	Discord  DiscordConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера (админ-API и метрики)
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности админ-API
type SecurityConfig struct {
	// AdminTokenHash - bcrypt hash токена админ-API (см. pkg/crypto)
	AdminTokenHash string
}

// EngineConfig - настройки движка матчинга алертов
type EngineConfig struct {
	// CheckPeriod - период цикла проверки алертов (ALERTS_CHECK_PERIOD_MIN)
	CheckPeriod time.Duration

	// CandleInterval - таймфрейм запрашиваемых свечей ("1m", "5m", "1h", "1d")
	CandleInterval string

	// CandleLimit - число свечей на запрос; предикаты оцениваются
	// по самой свежей
	CandleLimit int

	// CandleTimeout - таймаут одного запроса свечей к бирже
	CandleTimeout time.Duration

	// TrendCloseOnly - трендовый предикат по телу свечи (open..close)
	// вместо полного диапазона low..high
	TrendCloseOnly bool

	// RetentionPeriod - сколько живет алерт с исчерпанным repeat после
	// последнего срабатывания
	RetentionPeriod time.Duration

	// RetentionCheckPeriod - период retention sweep'ов (полного скана
	// таблицы в каждом цикле не требуется)
	RetentionCheckPeriod time.Duration
}

// DeliveryConfig - настройки сервиса доставки уведомлений
type DeliveryConfig struct {
	// BatchSize - максимум NEW уведомлений, захватываемых одним раундом
	BatchSize int

	// DebounceWindow - окно коалесценции повторных запусков раунда
	DebounceWindow time.Duration

	// RetryPeriod - период фонового тикера раундов; подбирает NEW
	// уведомления, вернувшиеся после временных сбоев
	RetryPeriod time.Duration

	// SendTimeout - таймаут одной отправки в Discord
	SendTimeout time.Duration

	// RetentionPeriod - возраст, после которого уведомления удаляются
	// независимо от статуса
	RetentionPeriod time.Duration

	// RetentionCheckPeriod - период retention sweep'ов уведомлений
	RetentionCheckPeriod time.Duration

	// CommitEvery - число единиц работы между частичными коммитами
	// при массовых миграциях
	CommitEvery int
}

// DiscordConfig - настройки Discord-бота
type DiscordConfig struct {
	Token string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "spotalert"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			AdminTokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
		},
		Engine: EngineConfig{
			CheckPeriod:          time.Duration(getEnvAsInt("ALERTS_CHECK_PERIOD_MIN", 5)) * time.Minute,
			CandleInterval:       getEnv("CANDLE_INTERVAL", "5m"),
			CandleLimit:          getEnvAsInt("CANDLE_LIMIT", 3),
			CandleTimeout:        getEnvAsDuration("CANDLE_TIMEOUT", 10*time.Second),
			TrendCloseOnly:       getEnvAsBool("TREND_CLOSE_ONLY", false),
			RetentionPeriod:      getEnvAsDuration("ALERT_RETENTION_PERIOD", 30*24*time.Hour),
			RetentionCheckPeriod: getEnvAsDuration("RETENTION_CHECK_PERIOD", 6*time.Hour),
		},
		Delivery: DeliveryConfig{
			BatchSize:            getEnvAsInt("DELIVERY_BATCH_SIZE", 50),
			DebounceWindow:       getEnvAsDuration("DELIVERY_DEBOUNCE_WINDOW", 2*time.Second),
			RetryPeriod:          getEnvAsDuration("DELIVERY_RETRY_PERIOD", time.Minute),
			SendTimeout:          getEnvAsDuration("DELIVERY_SEND_TIMEOUT", 10*time.Second),
			RetentionPeriod:      getEnvAsDuration("NOTIFICATION_RETENTION_PERIOD", 72*time.Hour),
			RetentionCheckPeriod: getEnvAsDuration("NOTIFICATION_RETENTION_CHECK_PERIOD", 6*time.Hour),
			CommitEvery:          getEnvAsInt("DELIVERY_COMMIT_EVERY", 100),
		},
		Discord: DiscordConfig{
			Token: getEnv("DISCORD_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет диапазоны и обязательные параметры
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Discord.Token == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}

	if c.Engine.CheckPeriod < time.Minute {
		return fmt.Errorf("ALERTS_CHECK_PERIOD_MIN must be at least 1 minute, got %v", c.Engine.CheckPeriod)
	}

	switch c.Engine.CandleInterval {
	case "1m", "5m", "1h", "1d":
	default:
		return fmt.Errorf("CANDLE_INTERVAL must be one of 1m/5m/1h/1d, got %q", c.Engine.CandleInterval)
	}

	if c.Engine.CandleLimit < 1 {
		return fmt.Errorf("CANDLE_LIMIT must be positive, got %d", c.Engine.CandleLimit)
	}

	if c.Engine.CandleTimeout <= 0 {
		return fmt.Errorf("CANDLE_TIMEOUT must be positive, got %v", c.Engine.CandleTimeout)
	}

	if c.Delivery.BatchSize < 1 {
		return fmt.Errorf("DELIVERY_BATCH_SIZE must be positive, got %d", c.Delivery.BatchSize)
	}

	if c.Delivery.RetryPeriod <= 0 {
		return fmt.Errorf("DELIVERY_RETRY_PERIOD must be positive, got %v", c.Delivery.RetryPeriod)
	}

	if c.Delivery.SendTimeout <= 0 {
		return fmt.Errorf("DELIVERY_SEND_TIMEOUT must be positive, got %v", c.Delivery.SendTimeout)
	}

	if c.Delivery.CommitEvery < 1 {
		return fmt.Errorf("DELIVERY_COMMIT_EVERY must be positive, got %d", c.Delivery.CommitEvery)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

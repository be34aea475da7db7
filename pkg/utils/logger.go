package utils

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig - конфигурация логгера
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal (default: info)
	Format      string // json или text (default: json)
	Output      string // путь к файлу; пусто = stderr
	Development bool   // режим разработки (caller, stacktrace на warn)
}

// Logger оборачивает zap.Logger и добавляет доменные конструкторы полей
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger создает логгер по конфигурации.
// Некорректный уровень или недоступный файл вывода не фатальны:
// применяются info и stderr соответственно.
func InitLogger(config LogConfig) *Logger {
	level := parseLevel(config.Level)

	var encoderConfig zapcore.EncoderConfig
	if config.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "ts"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	if strings.ToLower(config.Format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	sink := zapcore.AddSync(os.Stderr)
	if config.Output != "" {
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			sink = zapcore.AddSync(file)
		}
	}

	core := zapcore.NewCore(encoder, sink, level)

	var opts []zap.Option
	if config.Development {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// parseLevel разбирает строковый уровень логирования, info по умолчанию
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// With возвращает новый логгер с дополнительными полями
func (l *Logger) With(fields ...zap.Field) *Logger {
	zl := l.Logger.With(fields...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// WithComponent возвращает логгер, помеченный именем компонента
func (l *Logger) WithComponent(component string) *Logger {
	return l.With(Component(component))
}

// WithExchange возвращает логгер, помеченный именем биржи
func (l *Logger) WithExchange(exchange string) *Logger {
	return l.With(Exchange(exchange))
}

// WithPair возвращает логгер, помеченный торговой парой
func (l *Logger) WithPair(pair string) *Logger {
	return l.With(Pair(pair))
}

// WithAlertID возвращает логгер, помеченный id алерта
func (l *Logger) WithAlertID(id int64) *Logger {
	return l.With(AlertID(id))
}

// Sugar возвращает sugared-логгер для printf-style вызовов
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// ============ Глобальный логгер ============

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger инициализирует и устанавливает глобальный логгер
func InitGlobalLogger(config LogConfig) *Logger {
	logger := InitLogger(config)
	SetGlobalLogger(logger)
	return logger
}

// SetGlobalLogger устанавливает глобальный логгер
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger возвращает глобальный логгер, создавая дефолтный при
// первом обращении
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// L - сокращение для GetGlobalLogger
func L() *Logger {
	return GetGlobalLogger()
}

// Debug логирует через глобальный логгер
func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

// Info логирует через глобальный логгер
func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }

// Warn логирует через глобальный логгер
func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

// Error логирует через глобальный логгер
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

// Debugf логирует форматированное сообщение через глобальный логгер
func Debugf(template string, args ...interface{}) { L().sugar.Debugf(template, args...) }

// Infof логирует форматированное сообщение через глобальный логгер
func Infof(template string, args ...interface{}) { L().sugar.Infof(template, args...) }

// Warnf логирует форматированное сообщение через глобальный логгер
func Warnf(template string, args ...interface{}) { L().sugar.Warnf(template, args...) }

// Errorf логирует форматированное сообщение через глобальный логгер
func Errorf(template string, args ...interface{}) { L().sugar.Errorf(template, args...) }

// ============ Доменные конструкторы полей ============

// Exchange - поле с именем биржи
func Exchange(exchange string) zap.Field { return zap.String("exchange", exchange) }

// Pair - поле с торговой парой
func Pair(pair string) zap.Field { return zap.String("pair", pair) }

// AlertID - поле с id алерта
func AlertID(id int64) zap.Field { return zap.Int64("alert_id", id) }

// NotificationID - поле с id уведомления
func NotificationID(id int64) zap.Field { return zap.Int64("notification_id", id) }

// UserID - поле с id пользователя
func UserID(id int64) zap.Field { return zap.Int64("user_id", id) }

// ServerID - поле с id сервера
func ServerID(id int64) zap.Field { return zap.Int64("server_id", id) }

// Price - поле с ценой (строковое представление decimal)
func Price(price string) zap.Field { return zap.String("price", price) }

// Count - поле со счетчиком затронутых записей
func Count(n int) zap.Field { return zap.Int("count", n) }

// Component - поле с именем компонента
func Component(component string) zap.Field { return zap.String("component", component) }

// RequestID - поле с id запроса
func RequestID(id string) zap.Field { return zap.String("request_id", id) }

// Latency - поле с латентностью в миллисекундах
func Latency(ms float64) zap.Field { return zap.Float64("latency_ms", ms) }

// ============ Реэкспорт стандартных конструкторов zap ============

// String - реэкспорт zap.String
func String(key, value string) zap.Field { return zap.String(key, value) }

// Int - реэкспорт zap.Int
func Int(key string, value int) zap.Field { return zap.Int(key, value) }

// Int64 - реэкспорт zap.Int64
func Int64(key string, value int64) zap.Field { return zap.Int64(key, value) }

// Float64 - реэкспорт zap.Float64
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }

// Bool - реэкспорт zap.Bool
func Bool(key string, value bool) zap.Field { return zap.Bool(key, value) }

// Err - реэкспорт zap.Error
func Err(err error) zap.Field { return zap.Error(err) }

// Any - реэкспорт zap.Any
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

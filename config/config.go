package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"Replayer/model"
)

// Config stores the application configuration.
type Config struct {
	HTTPAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置，播放快照发布
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration

	// MinIO配置，媒体文件存储
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	PresignExpiry  time.Duration

	// 控制接口鉴权；JWTSecret 为空时不校验
	JWTSecret           string
	ControlPasswordHash string // bcrypt hash
	TokenTTL            time.Duration

	LogLevel  string
	LogFile   string
	LogPretty bool

	// 同步与会话
	SyncPollInterval time.Duration
	SyncMode         string // seek, rate
	Multitrack       bool   // 导航时同时控制所有音轨
	CompilationFile  string
	WatchCompilation bool

	Playback PlaybackDefaults
}

// PlaybackDefaults 是播放设置的默认值，数据库中没有设置记录时使用
type PlaybackDefaults struct {
	FadeInDuration          int // ms
	FadeOutDuration         int // ms
	AddFadeInPreRoll        bool
	DefaultPreRollDuration  float64 // seconds
	KeyboardShortcutTimeout int     // ms
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvMillis reads a millisecond count and returns it as a duration.
func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() *Config {
	syncMode := strings.ToLower(getEnv("SYNC_MODE", "seek"))
	if syncMode != "seek" && syncMode != "rate" {
		log.Printf("Unknown SYNC_MODE %q, falling back to seek", syncMode)
		syncMode = "seek"
	}

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "replayer"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SnapshotTTL:   time.Duration(getEnvInt("SNAPSHOT_TTL_SECONDS", 60)) * time.Second,

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "replayer"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		PresignExpiry:  time.Duration(getEnvInt("PRESIGN_EXPIRY_MINUTES", 60)) * time.Minute,

		JWTSecret:           os.Getenv("JWT_SECRET"),
		ControlPasswordHash: os.Getenv("CONTROL_PASSWORD_HASH"),
		TokenTTL:            time.Duration(getEnvInt("TOKEN_TTL_HOURS", 12)) * time.Hour,

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		SyncPollInterval: getEnvMillis("SYNC_POLL_INTERVAL", 250),
		SyncMode:         syncMode,
		Multitrack:       getEnvBool("MULTITRACK", false),
		CompilationFile:  getEnv("COMPILATION_FILE", ""),
		WatchCompilation: getEnvBool("WATCH_COMPILATION", true),

		Playback: PlaybackDefaults{
			FadeInDuration:          getEnvInt("FADE_IN_DURATION", 1000),
			FadeOutDuration:         getEnvInt("FADE_OUT_DURATION", 1000),
			AddFadeInPreRoll:        getEnvBool("ADD_FADE_IN_PRE_ROLL", true),
			DefaultPreRollDuration:  getEnvFloat("DEFAULT_PRE_ROLL_DURATION", 0),
			KeyboardShortcutTimeout: getEnvInt("KEYBOARD_SHORTCUT_TIMEOUT", 1000),
		},
	}
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// Settings converts the defaults into playback settings.
func (p PlaybackDefaults) Settings() model.Settings {
	return model.Settings{
		FadeInDuration:          p.FadeInDuration,
		FadeOutDuration:         p.FadeOutDuration,
		AddFadeInPreRoll:        p.AddFadeInPreRoll,
		DefaultPreRollDuration:  p.DefaultPreRollDuration,
		KeyboardShortcutTimeout: p.KeyboardShortcutTimeout,
	}
}

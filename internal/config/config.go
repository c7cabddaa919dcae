package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultRegisterURL = "https://assets.publishing.service.gov.uk/media/69525e05542c867b685c4036/2025-12-29_-_Worker_and_Temporary_Worker.csv"

type Config struct {
	DBPath    string
	OutputDir string
	SitesPath string

	RegisterURL          string
	RegisterFormat       string
	RegisterTimeoutMs    int
	RegisterRateLimitRPS int
	RegisterMaxAgeDays   int
	UserAgent            string

	RefreshCheckIntervalSec int
	RefreshAutoExport       bool

	ServerAddr  string
	CORSOrigins []string

	ChromeHeadless   bool
	RenderTimeoutSec int
	WatchIntervalSec int

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, eris.Wrap(err, "config: working directory")
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "sponsors.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		SitesPath: getEnv("SITES_PATH", ""),

		RegisterURL:          getEnv("REGISTER_URL", DefaultRegisterURL),
		RegisterFormat:       strings.ToLower(getEnv("REGISTER_FORMAT", "auto")),
		RegisterTimeoutMs:    getEnvInt("REGISTER_TIMEOUT_MS", 60000),
		RegisterRateLimitRPS: getEnvInt("REGISTER_RATE_LIMIT_RPS", 2),
		RegisterMaxAgeDays:   getEnvInt("REGISTER_MAX_AGE_DAYS", 30),
		UserAgent:            getEnv("USER_AGENT", "sponsorcheck/1.0"),

		RefreshCheckIntervalSec: getEnvInt("REFRESH_CHECK_INTERVAL_SEC", 3600),
		RefreshAutoExport:       getEnvBool("REFRESH_AUTO_EXPORT", false),

		ServerAddr:  getEnv("SERVER_ADDR", ":8080"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		ChromeHeadless:   getEnvBool("CHROME_HEADLESS", true),
		RenderTimeoutSec: getEnvInt("RENDER_TIMEOUT_SEC", 60),
		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 5),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	return cfg, nil
}

func (c Config) RegisterMaxAge() time.Duration {
	return time.Duration(c.RegisterMaxAgeDays) * 24 * time.Hour
}

func (c Config) RefreshCheckInterval() time.Duration {
	return time.Duration(c.RefreshCheckIntervalSec) * time.Second
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return eris.Errorf("missing required env var: %s", name)
	}
	return nil
}

// InitLogger installs the global zap logger.
func InitLogger(level, format string) error {
	var zapCfg zap.Config
	if format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(lvl)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

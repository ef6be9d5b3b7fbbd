package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where mailsense stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// InstanceURL is the url of your mailsense instance.
	InstanceURL string

	// AuthSecret signs and verifies the bearer tokens carrying user identity.
	// Identity itself is issued elsewhere; this server only verifies.
	AuthSecret string // MAILSENSE_AUTH_SECRET

	// Agent synthesis chain configuration.
	AIPrimaryBaseURL   string        // MAILSENSE_AI_PRIMARY_BASE_URL (default: http://localhost:11434/v1)
	AIPrimaryAPIKey    string        // MAILSENSE_AI_PRIMARY_API_KEY
	AIPrimaryModel     string        // MAILSENSE_AI_PRIMARY_MODEL (default: qwen2.5:7b)
	AISecondaryBaseURL string        // MAILSENSE_AI_SECONDARY_BASE_URL (default: https://api.openai.com/v1)
	AISecondaryAPIKey  string        // MAILSENSE_AI_SECONDARY_API_KEY
	AISecondaryModel   string        // MAILSENSE_AI_SECONDARY_MODEL (default: gpt-4o-mini)
	AIChainOrder       string        // MAILSENSE_AI_CHAIN (default: primary,secondary,template)
	AICallTimeout      time.Duration // MAILSENSE_AI_CALL_TIMEOUT (default: 20s)

	// Cache layer configuration.
	CacheRedisAddr     string        // MAILSENSE_CACHE_REDIS_ADDR (empty: memory tier only)
	CacheDomainRiskTTL time.Duration // MAILSENSE_CACHE_DOMAIN_RISK_TTL (default: 720h)
	CacheSessionTTL    time.Duration // MAILSENSE_CACHE_SESSION_TTL (default: 1h)
	CacheToolResultTTL time.Duration // MAILSENSE_CACHE_TOOL_RESULT_TTL (default: 5m)

	// ToolsDisabled is a comma-separated list of tool names to disable.
	ToolsDisabled string // MAILSENSE_TOOLS_DISABLED

	// Retrieval configuration.
	RetrievalWindowDays  int // MAILSENSE_RETRIEVAL_WINDOW_DAYS (default: 30)
	RetrievalMaxContexts int // MAILSENSE_RETRIEVAL_MAX_CONTEXTS (default: 6)

	// Rate limiting for the run endpoint.
	RateLimitRPS   int // MAILSENSE_RATE_LIMIT_RPS (default: 10)
	RateLimitBurst int // MAILSENSE_RATE_LIMIT_BURST (default: 20)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// DisabledTools returns the parsed tool disable list.
func (p *Profile) DisabledTools() []string {
	if p.ToolsDisabled == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(p.ToolsDisabled, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ChainOrder returns the configured synthesis provider order.
func (p *Profile) ChainOrder() []string {
	order := p.AIChainOrder
	if order == "" {
		order = "primary,secondary,template"
	}
	var names []string
	for _, name := range strings.Split(order, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in environment, using default",
			slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return d
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer in environment, using default",
			slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return n
}

// FromEnv loads configuration from MAILSENSE_* environment variables.
func (p *Profile) FromEnv() {
	p.AuthSecret = os.Getenv("MAILSENSE_AUTH_SECRET")

	p.AIPrimaryBaseURL = getEnvOrDefault("MAILSENSE_AI_PRIMARY_BASE_URL", "http://localhost:11434/v1")
	p.AIPrimaryAPIKey = os.Getenv("MAILSENSE_AI_PRIMARY_API_KEY")
	p.AIPrimaryModel = getEnvOrDefault("MAILSENSE_AI_PRIMARY_MODEL", "qwen2.5:7b")
	p.AISecondaryBaseURL = getEnvOrDefault("MAILSENSE_AI_SECONDARY_BASE_URL", "https://api.openai.com/v1")
	p.AISecondaryAPIKey = os.Getenv("MAILSENSE_AI_SECONDARY_API_KEY")
	p.AISecondaryModel = getEnvOrDefault("MAILSENSE_AI_SECONDARY_MODEL", "gpt-4o-mini")
	p.AIChainOrder = getEnvOrDefault("MAILSENSE_AI_CHAIN", "primary,secondary,template")
	p.AICallTimeout = getDurationEnv("MAILSENSE_AI_CALL_TIMEOUT", 20*time.Second)

	p.CacheRedisAddr = os.Getenv("MAILSENSE_CACHE_REDIS_ADDR")
	p.CacheDomainRiskTTL = getDurationEnv("MAILSENSE_CACHE_DOMAIN_RISK_TTL", 720*time.Hour)
	p.CacheSessionTTL = getDurationEnv("MAILSENSE_CACHE_SESSION_TTL", time.Hour)
	p.CacheToolResultTTL = getDurationEnv("MAILSENSE_CACHE_TOOL_RESULT_TTL", 5*time.Minute)

	p.ToolsDisabled = os.Getenv("MAILSENSE_TOOLS_DISABLED")

	p.RetrievalWindowDays = getIntEnv("MAILSENSE_RETRIEVAL_WINDOW_DAYS", 30)
	p.RetrievalMaxContexts = getIntEnv("MAILSENSE_RETRIEVAL_MAX_CONTEXTS", 6)

	p.RateLimitRPS = getIntEnv("MAILSENSE_RATE_LIMIT_RPS", 10)
	p.RateLimitBurst = getIntEnv("MAILSENSE_RATE_LIMIT_BURST", 20)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "mailsense")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/mailsense"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("mailsense_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported database driver: %s", p.Driver)
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	minJWTSecretBytes = 32
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port      int
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL string

	JWTSecret    string
	JWTIssuer    string
	JWTExpiresIn time.Duration

	BcryptCost           int
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration

	FrontendURL string
	PublicURL   string

	ResendAPIKey string
	FromEmail    string

	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string

	AuthRateLimitRequests int
	AuthRateLimitWindow   time.Duration
	AuthRateLimitBurst    int

	// TrustedProxies lists the CIDRs allowed to set X-Forwarded-For. Empty
	// means the socket peer is the client address.
	TrustedProxies []*net.IPNet

	ShutdownTimeout time.Duration
}

// IsDevelopment reports whether the process runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// Load reads configuration from the environment, after loading the given
// .env files if they exist, and validates it.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	p := parser{}
	cfg := Config{
		Port:      p.int("PORT", 8080),
		Env:       strings.ToLower(getEnv("ENV", EnvDevelopment)),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTIssuer:    getEnv("JWT_ISSUER", "taskflow"),
		JWTExpiresIn: p.duration("JWT_EXPIRES_IN", 7*24*time.Hour),

		BcryptCost:           p.int("BCRYPT_COST", 10),
		VerificationTokenTTL: p.duration("VERIFICATION_TOKEN_TTL", 24*time.Hour),
		ResetTokenTTL:        p.duration("RESET_TOKEN_TTL", time.Hour),

		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:8080"), "/"),

		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		FromEmail:    getEnv("FROM_EMAIL", "onboarding@resend.dev"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),

		AuthRateLimitRequests: p.int("AUTH_RATE_LIMIT_REQUESTS", 20),
		AuthRateLimitWindow:   p.duration("AUTH_RATE_LIMIT_WINDOW", time.Minute),
		AuthRateLimitBurst:    p.int("AUTH_RATE_LIMIT_BURST", 20),
		TrustedProxies:        p.cidrs("TRUSTED_PROXIES"),

		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
	if p.err != nil {
		return Config{}, p.err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if !c.IsDevelopment() && len(c.JWTSecret) < minJWTSecretBytes {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes outside development", minJWTSecretBytes))
	}
	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("ENV must be %q or %q", EnvDevelopment, EnvProduction))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.JWTExpiresIn <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	if c.VerificationTokenTTL <= 0 || c.ResetTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}
	if c.Env == EnvProduction && c.ResendAPIKey == "" {
		errs = append(errs, errors.New("RESEND_API_KEY is required in production"))
	}
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// parser keeps the first parse error so Load can report it once.
type parser struct {
	err error
}

func (p *parser) int(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
		return defaultValue
	}
	return n
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
		return defaultValue
	}
	return d
}

// cidrs parses a comma-separated list of CIDRs. A bare IP is taken as a
// single-host range.
func (p *parser) cidrs(key string) []*net.IPNet {
	v := os.Getenv(key)
	if v == "" || p.err != nil {
		return nil
	}

	var nets []*net.IPNet
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			if ip := net.ParseIP(part); ip != nil && ip.To4() != nil {
				part += "/32"
			} else {
				part += "/128"
			}
		}
		_, n, err := net.ParseCIDR(part)
		if err != nil {
			p.err = fmt.Errorf("parse %s: %w", key, err)
			return nil
		}
		nets = append(nets, n)
	}
	return nets
}

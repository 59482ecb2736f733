// Package config carga la configuración YAML del core y la pisa con
// variables de entorno. Los structs exponen exactamente lo que los
// engines consumen; nada de transporte.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env         string `yaml:"env"`
		ServiceName string `yaml:"service_name"`
		LogLevel    string `yaml:"log_level"`
	} `yaml:"app"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis | off
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL time.Duration `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Auth struct {
		TFATTL        time.Duration `yaml:"tfa_ttl"`
		SessionTTL    time.Duration `yaml:"session_ttl"`
		RememberMeTTL time.Duration `yaml:"remember_me_ttl"`
		CacheTTL      time.Duration `yaml:"cache_ttl"`
	} `yaml:"auth"`

	Tokens struct {
		InviteTTL time.Duration `yaml:"invite_ttl"`
		SignupTTL time.Duration `yaml:"signup_ttl"`
		ResetTTL  time.Duration `yaml:"reset_ttl"`
	} `yaml:"tokens"`

	Domains struct {
		ClaimTTL   time.Duration `yaml:"claim_ttl"`
		DNSTimeout time.Duration `yaml:"dns_timeout"`
	} `yaml:"domains"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Security struct {
		PasswordPolicy struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
	} `yaml:"security"`

	Sweep struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"sweep"`
}

// Load lee el YAML, aplica defaults sanos y pisa con env.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.ServiceName == "" {
		c.App.ServiceName = "idcore"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == 0 {
		c.Cache.Memory.DefaultTTL = 2 * time.Minute
	}
	if c.Auth.TFATTL == 0 {
		c.Auth.TFATTL = 10 * time.Minute
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 8 * time.Hour
	}
	if c.Auth.RememberMeTTL == 0 {
		c.Auth.RememberMeTTL = 30 * 24 * time.Hour
	}
	if c.Auth.CacheTTL == 0 {
		c.Auth.CacheTTL = 5 * time.Minute
	}
	if c.Tokens.InviteTTL == 0 {
		c.Tokens.InviteTTL = 7 * 24 * time.Hour
	}
	if c.Tokens.SignupTTL == 0 {
		c.Tokens.SignupTTL = 24 * time.Hour
	}
	if c.Tokens.ResetTTL == 0 {
		c.Tokens.ResetTTL = time.Hour
	}
	if c.Domains.ClaimTTL == 0 {
		c.Domains.ClaimTTL = 72 * time.Hour
	}
	if c.Domains.DNSTimeout == 0 {
		c.Domains.DNSTimeout = 5 * time.Second
	}
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 12
		c.Security.PasswordPolicy.RequireUpper = true
		c.Security.PasswordPolicy.RequireLower = true
		c.Security.PasswordPolicy.RequireDigit = true
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = 15 * time.Minute
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate chequea las combinaciones que no tienen default razonable.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Cache.Kind {
	case "memory", "off":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("cache.redis.addr required for redis cache")
		}
	default:
		return fmt.Errorf("unknown cache kind %q", c.Cache.Kind)
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return err
		}
	}
	return nil
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides pisa el YAML con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("APP_SERVICE_NAME"); ok {
		c.App.ServiceName = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = strings.ToLower(v)
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}
	if v, ok := getEnvStr("POSTGRES_CONN_MAX_LIFETIME"); ok {
		c.Storage.Postgres.ConnMaxLifetime = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}
	if v, ok := getEnvDur("CACHE_MEMORY_DEFAULT_TTL"); ok {
		c.Cache.Memory.DefaultTTL = v
	}

	// AUTH
	if v, ok := getEnvDur("AUTH_TFA_TTL"); ok {
		c.Auth.TFATTL = v
	}
	if v, ok := getEnvDur("AUTH_SESSION_TTL"); ok {
		c.Auth.SessionTTL = v
	}
	if v, ok := getEnvDur("AUTH_REMEMBER_ME_TTL"); ok {
		c.Auth.RememberMeTTL = v
	}
	if v, ok := getEnvDur("AUTH_CACHE_TTL"); ok {
		c.Auth.CacheTTL = v
	}

	// TOKENS
	if v, ok := getEnvDur("TOKENS_INVITE_TTL"); ok {
		c.Tokens.InviteTTL = v
	}
	if v, ok := getEnvDur("TOKENS_SIGNUP_TTL"); ok {
		c.Tokens.SignupTTL = v
	}
	if v, ok := getEnvDur("TOKENS_RESET_TTL"); ok {
		c.Tokens.ResetTTL = v
	}

	// DOMAINS
	if v, ok := getEnvDur("DOMAINS_CLAIM_TTL"); ok {
		c.Domains.ClaimTTL = v
	}
	if v, ok := getEnvDur("DOMAINS_DNS_TIMEOUT"); ok {
		c.Domains.DNSTimeout = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v)
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}

	// SECURITY
	if v, ok := getEnvInt("SECURITY_PASSWORD_POLICY_MIN_LENGTH"); ok {
		c.Security.PasswordPolicy.MinLength = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_UPPER"); ok {
		c.Security.PasswordPolicy.RequireUpper = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_LOWER"); ok {
		c.Security.PasswordPolicy.RequireLower = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_DIGIT"); ok {
		c.Security.PasswordPolicy.RequireDigit = v
	}
	if v, ok := getEnvBool("SECURITY_PASSWORD_POLICY_REQUIRE_SYMBOL"); ok {
		c.Security.PasswordPolicy.RequireSymbol = v
	}

	// SWEEP
	if v, ok := getEnvDur("SWEEP_INTERVAL"); ok {
		c.Sweep.Interval = v
	}
}

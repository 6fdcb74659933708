package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// postgres | redis
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns int `yaml:"max_open_conns"`
			MaxIdleConns int `yaml:"max_idle_conns"`
		} `yaml:"postgres"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	MFA struct {
		// Issuer que aparece en la app TOTP del usuario.
		Issuer          string `yaml:"issuer"`
		BackupCodeCount int    `yaml:"backup_code_count"`
	} `yaml:"mfa"`

	Flow struct {
		// TTL de una interaction pendiente (login abierto, MFA a medio
		// resolver). Vencida, el flow arranca de cero.
		InteractionTTL time.Duration `yaml:"interaction_ttl"`

		// AuthorizationEndpoint del protocol engine, usado para reconstruir
		// el authorization request cuando una interaction vence durante el
		// MFA setup.
		AuthorizationEndpoint string `yaml:"authorization_endpoint"`
	} `yaml:"flow"`

	Security struct {
		// Policy default para pools que no definen la propia.
		PasswordPolicy struct {
			MinLength     int  `yaml:"min_length"`
			RequireUpper  bool `yaml:"require_upper"`
			RequireLower  bool `yaml:"require_lower"`
			RequireDigit  bool `yaml:"require_digit"`
			RequireSymbol bool `yaml:"require_symbol"`
		} `yaml:"password_policy"`
		PasswordBlacklistPath string `yaml:"password_blacklist_path"`
	} `yaml:"security"`

	Bootstrap struct {
		// Pool default que se crea al boot si no existe todavía.
		DefaultPool struct {
			Enabled bool   `yaml:"enabled"`
			ID      string `yaml:"id"`
			Name    string `yaml:"name"`
		} `yaml:"default_pool"`
	} `yaml:"bootstrap"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	// Overrides por env
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Normalizar ruta de blacklist (si relativa) respecto al directorio del YAML
	if p := strings.TrimSpace(c.Security.PasswordBlacklistPath); p != "" {
		if !filepath.IsAbs(p) {
			base := filepath.Dir(path)
			c.Security.PasswordBlacklistPath = filepath.Clean(filepath.Join(base, p))
		}
	}

	return &c, nil
}

// FromEnv arma la config sin archivo: defaults más variables de entorno.
// Pensado para contenedores donde todo viene por env.
func FromEnv() (*Config, error) {
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyDefaults completa los campos vacíos con valores sanos.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if c.MFA.Issuer == "" {
		c.MFA.Issuer = "poolhouse"
	}
	if c.MFA.BackupCodeCount == 0 {
		c.MFA.BackupCodeCount = 10
	}
	if c.Flow.InteractionTTL == 0 {
		c.Flow.InteractionTTL = 10 * time.Minute
	}
	if c.Flow.AuthorizationEndpoint == "" {
		c.Flow.AuthorizationEndpoint = "/auth"
	}
	if c.Security.PasswordPolicy.MinLength == 0 {
		c.Security.PasswordPolicy.MinLength = 8
	}
	if c.Bootstrap.DefaultPool.ID == "" {
		c.Bootstrap.DefaultPool.ID = "default"
	}
	if c.Bootstrap.DefaultPool.Name == "" {
		c.Bootstrap.DefaultPool.Name = "Default Pool"
	}
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

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Storage.Redis.Prefix = v
	}
	if v, ok := getEnvStr("MFA_ISSUER"); ok {
		c.MFA.Issuer = v
	}
	if v, ok := getEnvDur("FLOW_INTERACTION_TTL"); ok {
		c.Flow.InteractionTTL = v
	}
	if v, ok := getEnvStr("FLOW_AUTH_ENDPOINT"); ok {
		c.Flow.AuthorizationEndpoint = v
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("config: storage.dsn requerido con driver postgres")
		}
	case "redis":
		if strings.TrimSpace(c.Storage.Redis.Addr) == "" {
			return fmt.Errorf("config: storage.redis.addr requerido con driver redis")
		}
	default:
		return fmt.Errorf("config: storage.driver %q no soportado (postgres|redis)", c.Storage.Driver)
	}
	return nil
}

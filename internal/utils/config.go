package utils

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for the gateway. Values come from an
// optional yaml file and are overridden by the environment variables the kiosk
// deployments actually set.
type Config struct {
	Server struct {
		Host      string `yaml:"host"`
		Port      string `yaml:"port"`
		Prefork   bool   `yaml:"prefork"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
		Level      string `yaml:"level"`
	} `yaml:"logger"`

	Billing struct {
		BaseURL         string `yaml:"base_url"`
		ClientID        string `yaml:"client_id"`
		ClientSecret    string `yaml:"client_secret"`
		Scope           string `yaml:"scope"`
		PessoasDocField string `yaml:"pessoas_doc_field"`
		MockPessoas     bool   `yaml:"mock_pessoas"`
		TimeoutSecs     int    `yaml:"timeout_secs"`
	} `yaml:"billing"`

	Security struct {
		JWTSecret         string   `yaml:"jwt_secret"`
		AllowedDocDomains []string `yaml:"allowed_doc_domains"`
		CORSOrigins       []string `yaml:"cors_origins"`
		FrameAncestors    []string `yaml:"frame_ancestors"`
	} `yaml:"security"`

	SMTP struct {
		Host                  string `yaml:"host"`
		Port                  int    `yaml:"port"`
		User                  string `yaml:"user"`
		Pass                  string `yaml:"pass"`
		From                  string `yaml:"from"`
		TLSRejectUnauthorized bool   `yaml:"tls_reject_unauthorized"`
	} `yaml:"smtp"`

	Print struct {
		ServiceURL  string `yaml:"service_url"`
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		Queue       string `yaml:"queue"`
		Protocol    string `yaml:"protocol"`
		TimeoutSecs int    `yaml:"timeout_secs"`
	} `yaml:"print"`

	Cache struct {
		RedisHost          string        `yaml:"redis_host"`
		BoletoCacheDB      int           `yaml:"boleto_cache_db"`
		RateLimitDB        int           `yaml:"rate_limit_db"`
		BoletoCacheEnabled bool          `yaml:"boleto_cache_enabled"`
		BoletoCacheTTL     time.Duration `yaml:"boleto_cache_ttl"`
	} `yaml:"cache"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`
}

// PostgresConfig locates the kiosk API-key control-plane database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// AppConfig is the last configuration loaded by LoadConfig. Tests mutate it
// directly where they need to.
var AppConfig Config

var truthy = regexp.MustCompile(`^(?i:1|true|yes|sim|y)$`)

func defaultConfig() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = "3000"
	cfg.Server.StaticDir = "./public"
	cfg.Logger.Level = "info"
	cfg.Billing.BaseURL = "https://api.unimedpatos.sgusuite.com.br"
	cfg.Billing.Scope = "read"
	cfg.Billing.PessoasDocField = "documento"
	cfg.Billing.TimeoutSecs = 10
	cfg.Security.AllowedDocDomains = []string{
		"unimed.com.br",
		"unimedpatos.com.br",
		"unimedpatosdeminas.com.br",
		"sgusuite.com.br",
		"localhost",
		"127.0.0.1",
	}
	cfg.Security.CORSOrigins = []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
		"http://localhost:3000",
		"http://localhost:8081",
	}
	cfg.Security.FrameAncestors = []string{
		"http://localhost:5173",
		"http://127.0.0.1:5173",
		"http://localhost:5500",
		"http://127.0.0.1:5500",
		"http://localhost:8081",
	}
	cfg.SMTP.Port = 587
	cfg.SMTP.From = "noreply@localhost"
	cfg.SMTP.TLSRejectUnauthorized = true
	cfg.Print.Protocol = "raw"
	cfg.Print.TimeoutSecs = 15
	cfg.Cache.BoletoCacheEnabled = true
	cfg.Cache.BoletoCacheTTL = 5 * time.Minute
	cfg.RateLimiter.Interval = time.Minute
	return cfg
}

// LoadConfig reads the optional yaml file pointed at by CONFIG_PATH (falling
// back to ./config.yaml), applies environment overrides and stores the result
// in AppConfig.
func LoadConfig() Config {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg := LoadFrom(path)
	applyEnv(&cfg)
	AppConfig = cfg
	return cfg
}

// LoadFrom reads a yaml config file. A missing file yields the defaults; an
// unreadable one panics since the process cannot run half-configured.
func LoadFrom(path string) Config {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg
		}
		panic("config: " + err.Error())
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

// GetConfig returns the active configuration.
func GetConfig() Config {
	return AppConfig
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.Billing.ClientID, "CLIENT_ID")
	setStr(&cfg.Billing.ClientSecret, "CLIENT_SECRET")
	setStr(&cfg.Billing.BaseURL, "BILLING_BASE_URL")
	setStr(&cfg.Billing.PessoasDocField, "PESSOAS_DOC_FIELD")
	setStr(&cfg.Server.Port, "PORT")
	setStr(&cfg.Security.JWTSecret, "JWT_SECRET")
	setStr(&cfg.SMTP.Host, "SMTP_HOST")
	setStr(&cfg.SMTP.User, "SMTP_USER")
	setStr(&cfg.SMTP.Pass, "SMTP_PASS")
	setStr(&cfg.SMTP.From, "MAIL_FROM")
	setStr(&cfg.Print.ServiceURL, "PRINT_SERVICE_URL")
	setStr(&cfg.Print.Host, "PRINT_HOST")
	setStr(&cfg.Print.Queue, "PRINT_QUEUE")
	setStr(&cfg.Print.Protocol, "PRINT_PROTOCOL")
	setStr(&cfg.Cache.RedisHost, "REDIS_HOST")

	if v := os.Getenv("MOCK_PESSOAS"); v != "" {
		cfg.Billing.MockPessoas = truthy.MatchString(strings.TrimSpace(v))
	}
	if v := os.Getenv("SMTP_TLS_REJECT_UNAUTHORIZED"); v != "" {
		s := strings.TrimSpace(v)
		cfg.SMTP.TLSRejectUnauthorized = !(s == "0" || strings.EqualFold(s, "false") || strings.EqualFold(s, "no"))
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SMTP.Port = n
		}
	}
	if v := os.Getenv("PRINT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Print.Port = n
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Security.CORSOrigins = splitList(v, ",")
	}
	if v := os.Getenv("FRAME_ANCESTORS"); v != "" {
		cfg.Security.FrameAncestors = splitFields(v)
	}
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitFields(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range strings.Fields(s) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// DefaultPrintPort returns the conventional port for the given protocol when
// none is configured explicitly.
func DefaultPrintPort(protocol string) int {
	switch strings.ToLower(protocol) {
	case "lpr":
		return 515
	case "ipp":
		return 631
	default:
		return 9100
	}
}

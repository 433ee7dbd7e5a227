package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Auth      AuthConfig      `mapstructure:"auth"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Mail      MailConfig      `mapstructure:"mail"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	Upload    UploadConfig    `mapstructure:"upload"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	InternalSecret string   `mapstructure:"internal_secret"`
	CookieDomain   string   `mapstructure:"cookie_domain"`
	// TrustedProxies 列出允许设置 X-Forwarded-For 的反向代理（IP 或 CIDR），默认不信任。
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。Enabled=false 时限流、事件推送与任务队列退化为进程内实现。
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 描述令牌签发与登录保护参数。
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path"`
	PublicKeyPath         string        `mapstructure:"public_key_path"`
	PrivateKeyPEM         string        `mapstructure:"private_key_pem"`
	PublicKeyPEM          string        `mapstructure:"public_key_pem"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
}

// OAuthConfig 描述第三方登录配置，ClientID 为空的提供方视为未启用。
type OAuthConfig struct {
	GitHubClientID     string   `mapstructure:"github_client_id"`
	GitHubClientSecret string   `mapstructure:"github_client_secret"`
	GoogleClientID     string   `mapstructure:"google_client_id"`
	GoogleClientSecret string   `mapstructure:"google_client_secret"`
	CallbackBaseURL    string   `mapstructure:"callback_base_url"`
	StateSecret        string   `mapstructure:"state_secret"`
	AdminEmails        []string `mapstructure:"admin_emails"`
	SuccessRedirect    string   `mapstructure:"success_redirect"`
}

// MailConfig 描述联系表单通知邮件。APIKey 或 To 为空时不发送。
type MailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
	To           string `mapstructure:"to"`
}

// Enabled reports whether notification mail can be sent.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.ResendAPIKey) != "" && strings.TrimSpace(m.To) != ""
}

// CaptchaConfig 描述 reCAPTCHA 校验。Secret 为空时跳过校验。
type CaptchaConfig struct {
	Secret    string  `mapstructure:"secret"`
	VerifyURL string  `mapstructure:"verify_url"`
	MinScore  float64 `mapstructure:"min_score"`
}

// UploadConfig 描述上传限制。
type UploadConfig struct {
	MaxBytes  int64  `mapstructure:"max_bytes"`
	ClamdAddr string `mapstructure:"clamd_addr"`
}

// RateLimitConfig 描述联系表单限流。
type RateLimitConfig struct {
	Backend string        `mapstructure:"backend"`
	Window  time.Duration `mapstructure:"window"`
	Max     int           `mapstructure:"max"`
}

// TelemetryConfig 描述 OpenTelemetry 链路追踪。
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration from environment variables (with optional defaults).
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.API.AllowedOrigins = splitList(cfg.API.AllowedOrigins)
	cfg.OAuth.AdminEmails = splitList(cfg.OAuth.AdminEmails)
	cfg.API.TrustedProxies = splitList(cfg.API.TrustedProxies)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// ReadAuthKeys 返回 PEM 格式的私钥与公钥，内联配置优先于文件路径。
func (a AuthConfig) ReadAuthKeys() ([]byte, []byte, error) {
	privateKey := []byte(a.PrivateKeyPEM)
	if len(privateKey) == 0 {
		data, err := os.ReadFile(a.PrivateKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read private key: %w", err)
		}
		privateKey = data
	}
	publicKey := []byte(a.PublicKeyPEM)
	if len(publicKey) == 0 {
		data, err := os.ReadFile(a.PublicKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read public key: %w", err)
		}
		publicKey = data
	}
	return privateKey, publicKey, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "portfolio")
	v.SetDefault("database.user", "portfolio")
	v.SetDefault("database.password", "portfolio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "portfolio")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", 15*time.Minute)
	v.SetDefault("oauth.callback_base_url", "http://localhost:8080")
	v.SetDefault("oauth.success_redirect", "http://localhost:3000/admin")
	v.SetDefault("mail.from", "Portfolio Contact <onboarding@resend.dev>")
	v.SetDefault("captcha.verify_url", "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault("captcha.min_score", 0.5)
	v.SetDefault("upload.max_bytes", 5*1024*1024)
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.max", 3)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "portfolio-api")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                       "API_PORT",
		"api.allowed_origins":            "CORS_ALLOWED_ORIGINS",
		"api.internal_secret":            "INTERNAL_API_SECRET",
		"api.cookie_domain":              "COOKIE_DOMAIN",
		"api.trusted_proxies":            "TRUSTED_PROXIES",
		"database.host":                  "DATABASE_HOST",
		"database.port":                  "DATABASE_PORT",
		"database.name":                  "POSTGRES_DB",
		"database.user":                  "POSTGRES_USER",
		"database.password":              "POSTGRES_PASSWORD",
		"database.sslmode":               "DATABASE_SSLMODE",
		"redis.enabled":                  "REDIS_ENABLED",
		"redis.host":                     "REDIS_HOST",
		"redis.port":                     "REDIS_PORT",
		"minio.endpoint":                 "MINIO_ENDPOINT",
		"minio.public_endpoint":          "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":            "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":        "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                  "MINIO_USE_SSL",
		"minio.bucket":                   "MINIO_BUCKET",
		"minio.region":                   "MINIO_REGION",
		"minio.bucket_lookup":            "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":       "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_path":          "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":           "JWT_PUBLIC_KEY_PATH",
		"auth.private_key_pem":           "JWT_PRIVATE_KEY",
		"auth.public_key_pem":            "JWT_PUBLIC_KEY",
		"auth.access_token_ttl":          "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":         "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"oauth.github_client_id":         "GITHUB_ID",
		"oauth.github_client_secret":     "GITHUB_SECRET",
		"oauth.google_client_id":         "GOOGLE_ID",
		"oauth.google_client_secret":     "GOOGLE_SECRET",
		"oauth.callback_base_url":        "OAUTH_CALLBACK_BASE_URL",
		"oauth.state_secret":             "OAUTH_STATE_SECRET",
		"oauth.admin_emails":             "ADMIN_EMAILS",
		"oauth.success_redirect":         "OAUTH_SUCCESS_REDIRECT",
		"mail.resend_api_key":            "RESEND_API_KEY",
		"mail.from":                      "CONTACT_EMAIL_FROM",
		"mail.to":                        "CONTACT_EMAIL",
		"captcha.secret":                 "RECAPTCHA_SECRET",
		"captcha.verify_url":             "RECAPTCHA_VERIFY_URL",
		"captcha.min_score":              "RECAPTCHA_MIN_SCORE",
		"upload.max_bytes":               "UPLOAD_MAX_BYTES",
		"upload.clamd_addr":              "CLAMD_ADDR",
		"ratelimit.backend":              "CONTACT_RATE_LIMIT_BACKEND",
		"ratelimit.window":               "CONTACT_RATE_LIMIT_WINDOW",
		"ratelimit.max":                  "CONTACT_RATE_LIMIT_MAX",
		"telemetry.enabled":              "OTEL_ENABLED",
		"telemetry.otlp_endpoint":        "OTEL_EXPORTER_OTLP_ENDPOINT",
		"telemetry.service_name":         "OTEL_SERVICE_NAME",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

// splitList 兼容逗号分隔的环境变量写法。
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Enabled {
		if cfg.Redis.Host == "" {
			return errors.New("redis host is required")
		}
		if cfg.Redis.Port <= 0 {
			return errors.New("redis port must be positive")
		}
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.PublicEndpoint == "" {
		return errors.New("minio public endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if cfg.Upload.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		if !cfg.Redis.Enabled {
			return errors.New("redis rate limit backend requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.Window <= 0 || cfg.RateLimit.Max <= 0 {
		return errors.New("rate limit window and max must be positive")
	}
	if (cfg.OAuth.GitHubClientID != "" || cfg.OAuth.GoogleClientID != "") && cfg.OAuth.StateSecret == "" {
		return errors.New("oauth state secret is required when an oauth provider is configured")
	}
	return nil
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMySQL = "mysql"
	DriverMongo = "mongo"

	defaultJWTSecret = "dev_secret_change_me"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env                 string   `json:"env"`                   // 运行环境: local / prod
	LogLevel            string   `json:"log_level"`             // 日志级别: debug / info / warn / error
	HTTPAddr            string   `json:"http_addr"`             // API 服务监听地址
	FrontendURL         string   `json:"frontend_url"`          // 前端地址（邮件链接使用）
	CORSOrigins         []string `json:"cors_origins"`          // 允许跨域的来源
	NotifyWorkers       int      `json:"notify_workers"`        // 邮件发送 worker 数
	NotifyQueueCapacity int      `json:"notify_queue_capacity"` // 邮件队列容量
	SeedDemo            bool     `json:"seed_demo"`             // 启动时创建演示账号
	DemoPassword        string   `json:"demo_password"`         // 演示账号密码
}

// DatabaseConfig 数据库配置。URL 以 mongodb:// 开头时使用文档存储。
type DatabaseConfig struct {
	Driver          string        `json:"driver"` // mysql / mongo
	URL             string        `json:"url"`    // MySQL DSN 或 MongoDB URI
	Name            string        `json:"name"`   // MongoDB 数据库名
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"-"`
}

// RedisConfig Redis 配置，Addr 为空表示不启用限流与邮件冷却。
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
}

// EmailConfig 邮件配置。
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// SecurityConfig 安全相关配置。
type SecurityConfig struct {
	JWTSecret     string        `json:"jwt_secret"`
	JWTTTL        time.Duration `json:"-"` // 会话 JWT 有效期
	TokenTTL      time.Duration `json:"-"` // 邮件验证码有效期
	EmailCooldown time.Duration `json:"-"` // 同一邮箱验证码邮件的最小间隔
	LoginRate     float64       `json:"login_rate"`
	LoginBurst    float64       `json:"login_burst"`
}

// Load 加载配置：.env → JSON 文件（可选）→ 默认值 → 环境变量覆盖。
//
// configPath 为空时使用 configs/config.json，文件不存在时只使用默认值与环境变量。
func Load(configPath ...string) (*Config, error) {
	_ = godotenv.Load()

	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	cfg.Database.Driver = detectDriver(cfg.Database)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验必须的配置项。
func (c *Config) Validate() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.App.Env == "prod" && c.Security.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("jwt secret must be changed in prod")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	switch c.Database.Driver {
	case DriverMySQL, DriverMongo:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:                 "local",
			LogLevel:            "info",
			HTTPAddr:            ":4000",
			FrontendURL:         "http://localhost:5173",
			CORSOrigins:         []string{"http://localhost:5173"},
			NotifyWorkers:       2,
			NotifyQueueCapacity: 100,
			DemoPassword:        "demo-password",
		},
		Database: DatabaseConfig{
			Driver:          DriverMySQL,
			URL:             "root:password@tcp(localhost:3306)/uptask?parseTime=true&loc=Local",
			Name:            "uptask",
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Email: EmailConfig{
			SMTPHost:  "",
			SMTPPort:  587,
			FromEmail: "UpTask <admin@uptask.com>",
		},
		Security: SecurityConfig{
			JWTSecret:     defaultJWTSecret,
			JWTTTL:        180 * 24 * time.Hour,
			TokenTTL:      10 * time.Minute,
			EmailCooldown: 60 * time.Second,
			LoginRate:     0.2,
			LoginBurst:    10,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.FrontendURL == "" {
		cfg.App.FrontendURL = defaults.App.FrontendURL
	}
	if len(cfg.App.CORSOrigins) == 0 {
		cfg.App.CORSOrigins = []string{cfg.App.FrontendURL}
	}
	if cfg.App.NotifyWorkers == 0 {
		cfg.App.NotifyWorkers = defaults.App.NotifyWorkers
	}
	if cfg.App.NotifyQueueCapacity == 0 {
		cfg.App.NotifyQueueCapacity = defaults.App.NotifyQueueCapacity
	}
	if cfg.App.DemoPassword == "" {
		cfg.App.DemoPassword = defaults.App.DemoPassword
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = defaults.Database.URL
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = defaults.Database.Name
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = defaults.Database.MaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Email.FromEmail == "" {
		cfg.Email.FromEmail = defaults.Email.FromEmail
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.JWTTTL == 0 {
		cfg.Security.JWTTTL = defaults.Security.JWTTTL
	}
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = defaults.Security.TokenTTL
	}
	if cfg.Security.EmailCooldown == 0 {
		cfg.Security.EmailCooldown = defaults.Security.EmailCooldown
	}
	if cfg.Security.LoginRate == 0 {
		cfg.Security.LoginRate = defaults.Security.LoginRate
	}
	if cfg.Security.LoginBurst == 0 {
		cfg.Security.LoginBurst = defaults.Security.LoginBurst
	}
}

func applyEnvOverrides(cfg *Config) {
	v := viper.New()
	v.AutomaticEnv()

	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("db_password", "DB_PASSWORD")
	_ = v.BindEnv("redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("smtp_pass", "SMTP_PASS")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")

	if s := os.Getenv("APP_ENV"); s != "" {
		cfg.App.Env = s
	}
	if s := os.Getenv("APP_LOG_LEVEL"); s != "" {
		cfg.App.LogLevel = s
	}
	if s := os.Getenv("APP_HTTP_ADDR"); s != "" {
		cfg.App.HTTPAddr = s
	} else if s := os.Getenv("PORT"); s != "" {
		cfg.App.HTTPAddr = ":" + s
	}
	if s := os.Getenv("FRONTEND_URL"); s != "" {
		cfg.App.FrontendURL = s
	}
	if s := os.Getenv("CORS_ORIGINS"); s != "" {
		cfg.App.CORSOrigins = splitList(s)
	}
	if s := os.Getenv("NOTIFY_WORKERS"); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			cfg.App.NotifyWorkers = i
		}
	}

	if s := os.Getenv("SEED_DEMO"); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			cfg.App.SeedDemo = b
		}
	}
	if s := os.Getenv("DEMO_PASSWORD"); s != "" {
		cfg.App.DemoPassword = s
	}

	if s := v.GetString("database_url"); s != "" {
		cfg.Database.URL = s
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_NAME") || v.GetString("db_password") != "" {
		cfg.Database.URL = overrideMySQLDSN(cfg.Database.URL, v.GetString("db_password"))
	}
	if s := os.Getenv("DB_DRIVER"); s != "" {
		cfg.Database.Driver = s
	}
	if s := os.Getenv("DB_NAME"); s != "" {
		cfg.Database.Name = s
	}
	if s := os.Getenv("DB_MAX_OPEN_CONNS"); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			cfg.Database.MaxOpenConns = i
		}
	}

	if s := v.GetString("redis_addr"); s != "" {
		cfg.Redis.Addr = s
	}
	if s := v.GetString("redis_password"); s != "" {
		cfg.Redis.Password = s
	}

	if s := os.Getenv("SMTP_HOST"); s != "" {
		cfg.Email.SMTPHost = s
	}
	if s := os.Getenv("SMTP_PORT"); s != "" {
		if i, err := strconv.Atoi(s); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if s := os.Getenv("SMTP_USER"); s != "" {
		cfg.Email.SMTPUser = s
	}
	if s := v.GetString("smtp_pass"); s != "" {
		cfg.Email.SMTPPass = s
	}
	if s := os.Getenv("SMTP_FROM"); s != "" {
		cfg.Email.FromEmail = s
	}

	if s := v.GetString("jwt_secret"); s != "" {
		cfg.Security.JWTSecret = s
	}
	if s := os.Getenv("JWT_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.Security.JWTTTL = d
		}
	}
	if s := os.Getenv("TOKEN_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.Security.TokenTTL = d
		}
	}
	if s := os.Getenv("EMAIL_COOLDOWN"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.Security.EmailCooldown = d
		}
	}
	if s := os.Getenv("LOGIN_RATE"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			cfg.Security.LoginRate = f
		}
	}
	if s := os.Getenv("LOGIN_BURST"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			cfg.Security.LoginBurst = f
		}
	}
}

// detectDriver 根据 URL 推断驱动，显式配置优先。
func detectDriver(db DatabaseConfig) string {
	if db.Driver != "" && db.Driver != DriverMySQL {
		return db.Driver
	}
	url := strings.ToLower(db.URL)
	if strings.HasPrefix(url, "mongodb://") || strings.HasPrefix(url, "mongodb+srv://") {
		return DriverMongo
	}
	return DriverMySQL
}

// overrideMySQLDSN 用 DB_HOST / DB_PORT / DB_USER / DB_NAME 覆盖 DSN 中的对应部分。
func overrideMySQLDSN(dsn, password string) string {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		parsed = mysql.NewConfig()
		parsed.Net = "tcp"
		parsed.Addr = "localhost:3306"
		parsed.DBName = "uptask"
		parsed.ParseTime = true
	}
	host, port := parsed.Addr, "3306"
	if i := strings.LastIndex(parsed.Addr, ":"); i >= 0 {
		host, port = parsed.Addr[:i], parsed.Addr[i+1:]
	}
	if s := os.Getenv("DB_HOST"); s != "" {
		host = s
	}
	if s := os.Getenv("DB_PORT"); s != "" {
		port = s
	}
	parsed.Addr = host + ":" + port
	if s := os.Getenv("DB_USER"); s != "" {
		parsed.User = s
	}
	if password != "" {
		parsed.Passwd = password
	}
	if s := os.Getenv("DB_NAME"); s != "" {
		parsed.DBName = s
	}
	return parsed.FormatDSN()
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// UnmarshalJSON 支持 Duration 字符串（如 "10m"）。
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		JWTTTL        string `json:"jwt_ttl"`
		TokenTTL      string `json:"token_ttl"`
		EmailCooldown string `json:"email_cooldown"`
		*Alias
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"jwt_ttl", aux.JWTTTL, &s.JWTTTL},
		{"token_ttl", aux.TokenTTL, &s.TokenTTL},
		{"email_cooldown", aux.EmailCooldown, &s.EmailCooldown},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// UnmarshalJSON 支持 conn_max_lifetime Duration 字符串。
func (d *DatabaseConfig) UnmarshalJSON(data []byte) error {
	type Alias DatabaseConfig
	aux := &struct {
		ConnMaxLifetime string `json:"conn_max_lifetime"`
		*Alias
	}{
		Alias: (*Alias)(d),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.ConnMaxLifetime != "" {
		v, err := time.ParseDuration(aux.ConnMaxLifetime)
		if err != nil {
			return fmt.Errorf("invalid conn_max_lifetime format: %w", err)
		}
		d.ConnMaxLifetime = v
	}
	return nil
}

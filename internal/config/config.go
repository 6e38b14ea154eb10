package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config" yaml:"basic_config"`
	OCR         OCRConfig                 `json:"ocr" yaml:"ocr"`
	Analysis    AnalysisConfig            `json:"analysis" yaml:"analysis"`
	Providers   map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Databases   map[string]DatabaseConfig `json:"databases" yaml:"databases"`
	Redis       RedisConfig               `json:"redis" yaml:"redis"`
	Log         LogConfig                 `json:"log" yaml:"log"`
	Firebase    FirebaseConfig            `json:"firebase" yaml:"firebase"`
}

type BasicConfig struct {
	ServerAddress     string   `json:"server_address" yaml:"server_address"`
	Mode              string   `json:"mode" yaml:"mode"`
	UploadDir         string   `json:"upload_dir" yaml:"upload_dir"`
	ArtifactDir       string   `json:"artifact_dir" yaml:"artifact_dir"`
	MaxUploadBytes    int64    `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	AllowedOrigins    []string `json:"allowed_origins" yaml:"allowed_origins"`
	AdminAPIKey       string   `json:"admin_api_key" yaml:"admin_api_key"`
	CSRFProtection    *bool    `json:"csrf_protection" yaml:"csrf_protection"`
	RateLimit         int      `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	Database          string   `json:"database" yaml:"database"`
	TempFileTTL       int      `json:"temp_file_ttl" yaml:"temp_file_ttl"`             // minutes
	TempCleanInterval int      `json:"temp_clean_interval" yaml:"temp_clean_interval"` // minutes
}

// OCRConfig controls how text is extracted from uploaded images.
type OCRConfig struct {
	Backend         string   `json:"backend" yaml:"backend"` // command | vision
	Command         string   `json:"command" yaml:"command"`
	Args            []string `json:"args" yaml:"args"`
	TimeoutSeconds  int      `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxConcurrent   int      `json:"max_concurrent" yaml:"max_concurrent"`
	CredentialsFile string   `json:"credentials_file" yaml:"credentials_file"`
}

// AnalysisConfig selects and tunes the analysis provider.
type AnalysisConfig struct {
	Provider        string  `json:"provider" yaml:"provider"`
	MaxInputChars   int     `json:"max_input_chars" yaml:"max_input_chars"`
	MaxOutputTokens int     `json:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature     float32 `json:"temperature" yaml:"temperature"`
	TopP            float32 `json:"top_p" yaml:"top_p"`
	MaxAttempts     int     `json:"max_attempts" yaml:"max_attempts"`
	RetryBackoffMS  int     `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	TimeoutSeconds  int     `json:"timeout_seconds" yaml:"timeout_seconds"`
}

type ProviderConfig struct {
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Model    string `json:"model" yaml:"model"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	Project  string `json:"project" yaml:"project"`
	Location string `json:"location" yaml:"location"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn" yaml:"dsn"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Params   string `json:"params" yaml:"params"`
}

// RedisConfig is optional; an empty Host disables rate limiting.
type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

type LogConfig struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	TimeFormat string `json:"time_format" yaml:"time_format"`
	Output     string `json:"output" yaml:"output"`
}

// FirebaseConfig is handed to the browser as-is by /api/firebase-config.
type FirebaseConfig struct {
	APIKey            string `json:"apiKey" yaml:"api_key"`
	AuthDomain        string `json:"authDomain" yaml:"auth_domain"`
	ProjectID         string `json:"projectId" yaml:"project_id"`
	StorageBucket     string `json:"storageBucket" yaml:"storage_bucket"`
	MessagingSenderID string `json:"messagingSenderId" yaml:"messaging_sender_id"`
	AppID             string `json:"appId" yaml:"app_id"`
}

const (
	ProviderHeuristic = "heuristic"
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderClaude    = "claude"
	ProviderVertex    = "vertex"

	OCRBackendCommand = "command"
	OCRBackendVision  = "vision"

	DefaultMaxUploadBytes = 10 << 20 // 10 MiB
)

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is not an error: defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, &cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if dbCfg, ok := cfg.Databases["sqlite3"]; ok && dbCfg.DSN != "" && dbCfg.DSN != ":memory:" && !filepath.IsAbs(dbCfg.DSN) {
		dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
		cfg.Databases["sqlite3"] = dbCfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	b := &c.BasicConfig
	b.ServerAddress = getEnv("LABREADER_ADDR", b.ServerAddress)
	b.Mode = getEnv("LABREADER_MODE", b.Mode)
	b.UploadDir = getEnv("LABREADER_UPLOAD_DIR", b.UploadDir)
	b.ArtifactDir = getEnv("LABREADER_ARTIFACT_DIR", b.ArtifactDir)
	b.AdminAPIKey = getEnv("LABREADER_ADMIN_API_KEY", b.AdminAPIKey)
	b.Database = getEnv("LABREADER_DB", b.Database)
	if v := os.Getenv("LABREADER_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			b.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("LABREADER_ALLOWED_ORIGINS"); v != "" {
		b.AllowedOrigins = splitList(v)
	}

	c.OCR.Backend = getEnv("LABREADER_OCR_BACKEND", c.OCR.Backend)
	c.OCR.Command = getEnv("LABREADER_OCR_COMMAND", c.OCR.Command)
	c.OCR.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", c.OCR.CredentialsFile)
	if v := os.Getenv("LABREADER_OCR_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.OCR.TimeoutSeconds = n
		}
	}

	c.Analysis.Provider = getEnv("LABREADER_ANALYSIS_PROVIDER", c.Analysis.Provider)

	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	for provider, env := range map[string]string{
		ProviderGemini: "GOOGLE_API_KEY",
		ProviderOpenAI: "OPENAI_API_KEY",
		ProviderClaude: "ANTHROPIC_API_KEY",
	} {
		if v := os.Getenv(env); v != "" {
			p := c.Providers[provider]
			p.APIKey = v
			c.Providers[provider] = p
		}
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		p := c.Providers[ProviderVertex]
		p.Project = v
		c.Providers[ProviderVertex] = p
	}

	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.Output = getEnv("LOG_OUTPUT", c.Log.Output)
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":5000"
	}
	if b.UploadDir == "" {
		b.UploadDir = "./data/uploads"
	}
	if b.ArtifactDir == "" {
		b.ArtifactDir = "./data/artifacts"
	}
	if b.MaxUploadBytes == 0 {
		b.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if b.CSRFProtection == nil {
		enabled := true
		b.CSRFProtection = &enabled
	}
	if b.Database == "" {
		b.Database = "sqlite3"
	}
	if b.TempFileTTL <= 0 {
		b.TempFileTTL = 30
	}
	if b.TempCleanInterval <= 0 {
		b.TempCleanInterval = 10
	}

	if c.OCR.Backend == "" {
		c.OCR.Backend = OCRBackendCommand
	}
	if c.OCR.Command == "" {
		c.OCR.Command = "ocr-extract"
	}
	if c.OCR.TimeoutSeconds <= 0 {
		c.OCR.TimeoutSeconds = 30
	}
	if c.OCR.MaxConcurrent <= 0 {
		c.OCR.MaxConcurrent = 4
	}

	a := &c.Analysis
	if a.Provider == "" {
		a.Provider = ProviderHeuristic
	}
	a.Provider = strings.ToLower(strings.TrimSpace(a.Provider))
	if a.MaxInputChars <= 0 {
		a.MaxInputChars = 3000
	}
	if a.MaxOutputTokens <= 0 {
		a.MaxOutputTokens = 800
	}
	if a.Temperature == 0 {
		a.Temperature = 0.6
	}
	if a.TopP == 0 {
		a.TopP = 0.92
	}
	if a.MaxAttempts <= 0 {
		a.MaxAttempts = 1
	}
	if a.RetryBackoffMS <= 0 {
		a.RetryBackoffMS = 500
	}
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = 60
	}

	if p, ok := c.Providers[ProviderVertex]; ok && p.Location == "" {
		p.Location = "us-central1"
		c.Providers[ProviderVertex] = p
	}

	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "./data/labreader.db"}
	}
	if mysql, ok := c.Databases["mysql"]; ok && mysql.Params == "" {
		mysql.Params = "parseTime=true"
		c.Databases["mysql"] = mysql
	}

	if c.Redis.Host != "" && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.TimeFormat == "" {
		c.Log.TimeFormat = "2006-01-02T15:04:05Z07:00"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
}

// Validate checks the settings that would otherwise fail on the first request.
func (c *Config) Validate() error {
	if c.BasicConfig.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	switch c.OCR.Backend {
	case OCRBackendCommand:
		if strings.TrimSpace(c.OCR.Command) == "" {
			return fmt.Errorf("ocr command must be configured")
		}
	case OCRBackendVision:
	default:
		return fmt.Errorf("unknown ocr backend: %s", c.OCR.Backend)
	}

	provider := c.Analysis.Provider
	switch provider {
	case ProviderHeuristic:
	case ProviderGemini, ProviderOpenAI, ProviderClaude:
		if c.Providers[provider].APIKey == "" {
			return fmt.Errorf("provider %s requires an api_key", provider)
		}
	case ProviderVertex:
		p := c.Providers[provider]
		if p.Project == "" || p.Location == "" {
			return fmt.Errorf("provider vertex requires project and location")
		}
	default:
		return fmt.Errorf("unknown analysis provider: %s", provider)
	}
	if c.Analysis.MaxAttempts > 5 {
		return fmt.Errorf("analysis max_attempts must be at most 5")
	}

	if _, ok := c.Databases[c.BasicConfig.Database]; !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.Database)
	}
	return nil
}

// CSRFEnabled reports whether the upload form requires a CSRF token.
func (b BasicConfig) CSRFEnabled() bool {
	return b.CSRFProtection == nil || *b.CSRFProtection
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

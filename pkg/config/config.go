package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"adstoryboard/pkg/httputil"
)

const (
	defaultConfigPath     = "config.yaml"
	defaultBackend        = BackendGemini
	defaultTextModel      = "gemini-2.5-pro"
	defaultImageModel     = "gemini-2.5-flash-image"
	defaultVertexLocation = "us-central1"
	defaultGroqModel      = "llama-3.3-70b-versatile"
	defaultLanguage       = "Bahasa Indonesia"
	defaultLocale         = "id"
	defaultScriptTimeout  = 2 * time.Minute
	defaultImageTimeout   = 2 * time.Minute
	defaultMaxDimension   = 1536
	defaultOutputDir      = "./output"
	defaultGCSPrefix      = "storyboards"
	defaultServerAddr     = ":8080"
	defaultMaxConcurrent  = 1
	defaultResultTTL      = 30 * time.Minute
	defaultMaxUploadBytes = 10 << 20
)

const (
	BackendGemini = "gemini"
	BackendGroq   = "groq"
	BackendFake   = "fake"
)

type Config struct {
	GeminiAPIKey string `yaml:"-"`
	GroqAPIKey   string `yaml:"-"`
	GCPProject   string `yaml:"-"`

	// Backend serves both phases. ScriptBackend overrides it for the script
	// phase only.
	Backend       string `yaml:"backend"`
	ScriptBackend string `yaml:"script_backend"`
	PromptsPath   string `yaml:"prompts_path"`

	Gemini     GeminiConfig     `yaml:"gemini"`
	Groq       GroqConfig       `yaml:"groq"`
	Generation GenerationConfig `yaml:"generation"`
	Image      ImageConfig      `yaml:"image"`
	Output     OutputConfig     `yaml:"output"`
	Server     ServerConfig     `yaml:"server"`

	// scriptBackendSet records that the config file named a script backend.
	scriptBackendSet bool
}

type GeminiConfig struct {
	TextModel  string               `yaml:"text_model"`
	ImageModel string               `yaml:"image_model"`
	Vertex     bool                 `yaml:"vertex"`
	Location   string               `yaml:"location"`
	DailyLimit int                  `yaml:"daily_limit"`
	Transport  httputil.RetryConfig `yaml:"transport_retry"`
}

type GroqConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type GenerationConfig struct {
	Language      string        `yaml:"language"`
	Locale        string        `yaml:"locale"`
	ScriptTimeout time.Duration `yaml:"script_timeout"`
	ImageTimeout  time.Duration `yaml:"image_timeout"`
	ScriptRetries int           `yaml:"script_retries"`
	ImageRetries  int           `yaml:"image_retries"`
	RateInterval  time.Duration `yaml:"rate_interval"`
}

type ImageConfig struct {
	MaxDimension int `yaml:"max_dimension"`
}

type OutputConfig struct {
	Dir string    `yaml:"dir"`
	GCS GCSConfig `yaml:"gcs"`
}

type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	// CredentialsFile is a service account key. Empty uses ADC.
	CredentialsFile string `yaml:"credentials_file"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	ResultTTL      time.Duration `yaml:"result_ttl"`
	KeepPartial    bool          `yaml:"keep_partial"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// accessSecret is replaced in tests.
var accessSecret = accessSecretVersion

func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, defaultConfigPath)
}

// LoadFrom reads .env, then the YAML file at path. A missing YAML file is
// not an error; defaults apply.
func LoadFrom(ctx context.Context, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GroqAPIKey:   os.Getenv("GROQ_API_KEY"),
		GCPProject:   os.Getenv("GOOGLE_CLOUD_PROJECT"),
	}

	if err := loadYAMLConfig(cfg, path); err != nil {
		return nil, err
	}
	cfg.scriptBackendSet = cfg.ScriptBackend != ""
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if cfg.GeminiAPIKey == "" {
		if name := os.Getenv("GEMINI_API_KEY_SECRET"); name != "" {
			key, err := accessSecret(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("resolve GEMINI_API_KEY_SECRET: %w", err)
			}
			cfg.GeminiAPIKey = key
		}
	}

	return cfg, nil
}

func loadYAMLConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("No config file found, using defaults", "path", path)
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Backend = getEnvOrDefault("ADSTORYBOARD_BACKEND", cfg.Backend)
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		cfg.Output.GCS.Bucket = bucket
		cfg.Output.GCS.Enabled = true
	}
	cfg.Output.GCS.CredentialsFile = getEnvOrDefault("GCS_CREDENTIALS_FILE", cfg.Output.GCS.CredentialsFile)
}

func applyDefaults(cfg *Config) {
	if cfg.Backend == "" {
		cfg.Backend = defaultBackend
	}
	if cfg.ScriptBackend == "" {
		cfg.ScriptBackend = cfg.Backend
	}
	applyGeminiDefaults(cfg)
	applyGroqDefaults(cfg)
	applyGenerationDefaults(cfg)
	applyImageDefaults(cfg)
	applyOutputDefaults(cfg)
	applyServerDefaults(cfg)
}

func applyGeminiDefaults(cfg *Config) {
	if cfg.Gemini.TextModel == "" {
		cfg.Gemini.TextModel = defaultTextModel
	}
	if cfg.Gemini.ImageModel == "" {
		cfg.Gemini.ImageModel = defaultImageModel
	}
	if cfg.Gemini.Location == "" {
		cfg.Gemini.Location = defaultVertexLocation
	}
	if cfg.Gemini.Transport == (httputil.RetryConfig{}) {
		cfg.Gemini.Transport = httputil.DefaultRetryConfig()
	}
}

func applyGroqDefaults(cfg *Config) {
	if cfg.Groq.Model == "" {
		cfg.Groq.Model = defaultGroqModel
	}
}

// Retries default to zero: a failed phase fails the request.
func applyGenerationDefaults(cfg *Config) {
	if cfg.Generation.Language == "" {
		cfg.Generation.Language = defaultLanguage
	}
	if cfg.Generation.Locale == "" {
		cfg.Generation.Locale = defaultLocale
	}
	if cfg.Generation.ScriptTimeout == 0 {
		cfg.Generation.ScriptTimeout = defaultScriptTimeout
	}
	if cfg.Generation.ImageTimeout == 0 {
		cfg.Generation.ImageTimeout = defaultImageTimeout
	}
}

func applyImageDefaults(cfg *Config) {
	if cfg.Image.MaxDimension == 0 {
		cfg.Image.MaxDimension = defaultMaxDimension
	}
}

func applyOutputDefaults(cfg *Config) {
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = defaultOutputDir
	}
	if cfg.Output.GCS.Prefix == "" {
		cfg.Output.GCS.Prefix = defaultGCSPrefix
	}
}

func applyServerDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultServerAddr
	}
	if cfg.Server.MaxConcurrent <= 0 {
		cfg.Server.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Server.ResultTTL == 0 {
		cfg.Server.ResultTTL = defaultResultTTL
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
}

// OverrideBackend switches both phases to backend. A script_backend from
// the config file is kept, except for fake, which always runs offline.
func (c *Config) OverrideBackend(backend string) {
	c.Backend = backend
	if backend == BackendFake || !c.scriptBackendSet {
		c.ScriptBackend = backend
	}
}

// Validate reports configuration that makes generation impossible, such as
// a missing credential for the selected backend.
func (c *Config) Validate() error {
	for _, b := range []string{c.Backend, c.ScriptBackend} {
		switch b {
		case BackendGemini, BackendFake:
		case BackendGroq:
			if b == c.Backend {
				return fmt.Errorf("backend %q cannot generate images; set it as script_backend", b)
			}
		default:
			return fmt.Errorf("unknown backend %q", b)
		}
	}

	if c.usesGemini() && !c.Gemini.Vertex && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set; run `adstoryboard setup`")
	}
	if c.Gemini.Vertex && c.usesGemini() && c.GCPProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for vertex mode")
	}
	if c.ScriptBackend == BackendGroq && c.GroqAPIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is not set")
	}
	if c.Output.GCS.Enabled && c.Output.GCS.Bucket == "" {
		return fmt.Errorf("output.gcs.enabled requires a bucket")
	}
	if c.Generation.ScriptRetries < 0 || c.Generation.ImageRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	return nil
}

func (c *Config) usesGemini() bool {
	return c.Backend == BackendGemini || c.ScriptBackend == BackendGemini
}

func accessSecretVersion(ctx context.Context, name string) (string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("create secret manager client: %w", err)
	}
	defer func() { _ = client.Close() }()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("access secret: %w", err)
	}
	return string(resp.GetPayload().GetData()), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

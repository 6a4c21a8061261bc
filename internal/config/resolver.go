package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultDBPath          = "~/.memeverse/memeverse.db"
	DefaultCatalogURL      = "https://api.imgflip.com/get_memes"
	DefaultPageSize        = 10
	DefaultUploadURL       = "https://api.imgbb.com/1/upload"
	DefaultCaptionProvider = "meme-api"
	DefaultCaptionURL      = "https://meme-api.com/generate"
	DefaultAddr            = "127.0.0.1:8787"
	DefaultLogLevel        = "info"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath  string
	CLIDBPath   string
	CLIAddr     string
	CLICaption  string
	CLILogLevel string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath     ResolvedValue `json:"db_path"`
	CatalogURL ResolvedValue `json:"catalog_url"`
	PageSize   ResolvedValue `json:"page_size"`

	UploadURL    ResolvedValue `json:"upload_url"`
	UploadAPIKey ResolvedValue `json:"upload_api_key"`

	CaptionProvider ResolvedValue `json:"caption_provider"`
	CaptionURL      ResolvedValue `json:"caption_url"`

	Addr      ResolvedValue `json:"addr"`
	LogLevel  ResolvedValue `json:"log_level"`
	LogFormat ResolvedValue `json:"log_format"`

	// LLMKeys maps an llm provider name to its API key.
	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	Addr   string `yaml:"addr"`
	Log    struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Catalog struct {
		URL      string `yaml:"url"`
		PageSize string `yaml:"page_size"`
	} `yaml:"catalog"`
	Upload struct {
		URL    string `yaml:"url"`
		APIKey string `yaml:"api_key"`
	} `yaml:"upload"`
	Caption struct {
		Provider string `yaml:"provider"`
		URL      string `yaml:"url"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"caption"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memeverse", "config.yaml")
}

// ResolveConfig layers defaults, the YAML file, environment variables and
// CLI flags, later layers winning. Each value records where it came from.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}
	applyDefault(&out.DBPath, DefaultDBPath)
	applyDefault(&out.CatalogURL, DefaultCatalogURL)
	applyDefault(&out.PageSize, strconv.Itoa(DefaultPageSize))
	applyDefault(&out.UploadURL, DefaultUploadURL)
	applyDefault(&out.CaptionProvider, DefaultCaptionProvider)
	applyDefault(&out.CaptionURL, DefaultCaptionURL)
	applyDefault(&out.Addr, DefaultAddr)
	applyDefault(&out.LogLevel, DefaultLogLevel)
	applyDefault(&out.LogFormat, "json")

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.Addr, cfg.Addr, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Log.Format, SourceConfig, path)
		apply(&out.CatalogURL, cfg.Catalog.URL, SourceConfig, path)
		apply(&out.PageSize, cfg.Catalog.PageSize, SourceConfig, path)
		apply(&out.UploadURL, cfg.Upload.URL, SourceConfig, path)
		apply(&out.UploadAPIKey, cfg.Upload.APIKey, SourceConfig, path)
		apply(&out.CaptionProvider, cfg.Caption.Provider, SourceConfig, path)
		apply(&out.CaptionURL, cfg.Caption.URL, SourceConfig, path)

		if key := strings.TrimSpace(cfg.Caption.APIKey); key != "" {
			p := providerOf(cfg.Caption.Provider)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "MEMEVERSE_DB")
	applyEnv(&out.CatalogURL, "MEMEVERSE_CATALOG_URL")
	applyEnv(&out.PageSize, "MEMEVERSE_PAGE_SIZE")
	applyEnv(&out.UploadURL, "MEMEVERSE_UPLOAD_URL")
	applyEnv(&out.UploadAPIKey, "IMGBB_API_KEY")
	applyEnv(&out.CaptionProvider, "MEMEVERSE_CAPTION")
	applyEnv(&out.CaptionURL, "MEMEVERSE_CAPTION_URL")
	applyEnv(&out.Addr, "MEMEVERSE_ADDR")
	applyEnv(&out.LogLevel, "MEMEVERSE_LOG_LEVEL")
	applyEnv(&out.LogFormat, "MEMEVERSE_LOG_FORMAT")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"GEMINI_API_KEY":     "google",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.Addr, opts.CLIAddr, SourceCLI, "--addr")
	apply(&out.CaptionProvider, opts.CLICaption, SourceCLI, "--caption")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")

	if out.DBPath.Value != ":memory:" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	if _, err := out.PageSizeInt(); err != nil {
		return out, err
	}
	return out, nil
}

// PageSizeInt parses the catalog page size.
func (r ResolvedConfig) PageSizeInt() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(r.PageSize.Value))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("page size %q (from %s) must be a positive integer", r.PageSize.Value, r.PageSize.Source)
	}
	return n, nil
}

// CaptionAPIKey returns the key for the configured caption provider. The
// meme-api provider needs none.
func (r ResolvedConfig) CaptionAPIKey() ResolvedValue {
	provider := providerOf(r.CaptionProvider.Value)
	if provider == "" || provider == DefaultCaptionProvider {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

// Redacted returns a copy safe to print: secrets keep their source but lose
// their value.
func (r ResolvedConfig) Redacted() ResolvedConfig {
	out := r
	out.UploadAPIKey = redact(r.UploadAPIKey)
	out.LLMKeys = make(map[string]ResolvedValue, len(r.LLMKeys))
	for k, v := range r.LLMKeys {
		out.LLMKeys[k] = redact(v)
	}
	return out
}

func redact(v ResolvedValue) ResolvedValue {
	if v.Value == "" {
		return v
	}
	v.Value = "********"
	return v
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func applyDefault(dst *ResolvedValue, v string) {
	*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "THREADDIGEST"
	configFileName = ".threaddigest"
)

// Config represents normalized runtime configuration for the CLI and the web
// server.
type Config struct {
	GitHub     GitHubConfig     `mapstructure:"github"`
	Reddit     RedditConfig     `mapstructure:"reddit"`
	HackerNews EndpointConfig   `mapstructure:"hackernews"`
	Bluesky    EndpointConfig   `mapstructure:"bluesky"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Analysis   AnalysisConfig   `mapstructure:"analysis"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Log        LogConfig        `mapstructure:"log"`
	Web        WebConfig        `mapstructure:"web"`
	History    HistoryConfig    `mapstructure:"history"`

	OutputPath string `mapstructure:"output"`
	Format     string `mapstructure:"format" validate:"oneof=markdown json transcript"`
	Stdout     bool   `mapstructure:"stdout"`
	Force      bool   `mapstructure:"force"`
	InputFile  string `mapstructure:"input_file"`
	Stream     bool   `mapstructure:"stream"`
	Pretty     bool   `mapstructure:"pretty"`

	// Positional holds the non-flag arguments.
	Positional []string `mapstructure:"-"`
	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type GitHubConfig struct {
	Token      string `mapstructure:"token"`
	GraphQLURL string `mapstructure:"graphql_url" validate:"omitempty,url"`
	RESTURL    string `mapstructure:"rest_url" validate:"omitempty,url"`
}

type RedditConfig struct {
	BaseURL      string `mapstructure:"base_url" validate:"omitempty,url"`
	UserAgent    string `mapstructure:"user_agent"`
	ListingPages int    `mapstructure:"listing_pages" validate:"min=1"`
}

// EndpointConfig carries only an API base URL override.
type EndpointConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

type YouTubeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

type FetchConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=1"`
	FallbackDelay   time.Duration `mapstructure:"fallback_delay" validate:"min=0"`
	MaxPages        int           `mapstructure:"max_pages" validate:"min=1"`
	IncludeComments bool          `mapstructure:"include_comments"`
	Collections     []string      `mapstructure:"collections" validate:"dive,oneof=issues pull_requests discussions"`
	// FailFast lists HTTP statuses that are not retried. Empty retries
	// every non-success response.
	FailFast        []int         `mapstructure:"fail_fast" validate:"dive,gte=400,lte=599"`
}

type AnalysisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Budget        int           `mapstructure:"budget" validate:"min=1"`
	Concurrency   int           `mapstructure:"concurrency" validate:"min=1"`
	FragmentSize  int           `mapstructure:"fragment_size" validate:"min=1"`
	FragmentDelay time.Duration `mapstructure:"fragment_delay" validate:"min=0"`
}

type OpenAIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url" validate:"omitempty,url"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type WebConfig struct {
	Addr        string   `mapstructure:"addr" validate:"required"`
	BaseURL     string   `mapstructure:"base_url" validate:"omitempty,url"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type HistoryConfig struct {
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0"`
}

// Loader resolves configuration from parsed command-line flags plus the
// environment and an optional config file.
type Loader interface {
	Load(flags *pflag.FlagSet, positional []string) (Config, error)
}

// NewLoader constructs the default viper-backed loader.
func NewLoader() Loader {
	return &viperLoader{}
}

type viperLoader struct{}

// Parse registers the standard flags on a fresh flag set, parses args and
// loads the configuration.
func Parse(args []string) (Config, error) {
	flags := pflag.NewFlagSet("threaddigest", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	RegisterFlags(flags)

	if err := flags.Parse(args); err != nil {
		return Config{}, WrapError("parse flags", NewValidationError("flags", err.Error()))
	}
	return NewLoader().Load(flags, flags.Args())
}

// flagKeys maps each flag name to its config key.
var flagKeys = map[string]string{
	"output":           "output",
	"format":           "format",
	"stdout":           "stdout",
	"force":            "force",
	"input-file":       "input_file",
	"stream":           "stream",
	"pretty":           "pretty",
	"include-comments": "fetch.include_comments",
	"collections":      "fetch.collections",
	"max-attempts":     "fetch.max_attempts",
	"max-pages":        "fetch.max_pages",
	"fail-fast":        "fetch.fail_fast",
	"token":            "github.token",
	"youtube-key":      "youtube.api_key",
	"analyze":          "analysis.enabled",
	"budget":           "analysis.budget",
	"concurrency":      "analysis.concurrency",
	"lang":             "openai.language",
	"model":            "openai.model",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"addr":             "web.addr",
	"history-ttl":      "history.ttl",
}

// RegisterFlags declares every command-line flag on flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (default .threaddigest.yaml in the working or home directory)")
	flags.StringP("output", "o", "", "output file or directory")
	flags.StringP("format", "f", "markdown", "output format: markdown, json or transcript")
	flags.Bool("stdout", false, "write the result to stdout")
	flags.Bool("force", false, "overwrite existing files")
	flags.String("input-file", "", "batch input file with one URL per line")
	flags.Bool("stream", false, "print analysis fragments as they arrive")
	flags.Bool("pretty", false, "render markdown for the terminal")
	flags.Bool("include-comments", true, "include comments")
	flags.StringSlice("collections", nil, "repository collections: issues, pull_requests, discussions")
	flags.Int("max-attempts", 5, "retries per page before giving up")
	flags.Int("max-pages", 1000, "page limit per collection")
	flags.IntSlice("fail-fast", nil, "HTTP statuses that end a fetch without retrying, e.g. 404,401")
	flags.String("token", "", "GitHub token")
	flags.String("youtube-key", "", "YouTube Data API key")
	flags.Bool("analyze", false, "add an AI analysis section")
	flags.Int("budget", 350000, "analysis chunk budget in characters")
	flags.Int("concurrency", 1, "concurrent analysis requests")
	flags.String("lang", "", "analysis language")
	flags.String("model", "", "analysis model")
	flags.String("log-level", "info", "log level")
	flags.String("log-format", "console", "log format: console or json")
	flags.String("addr", ":8080", "web listen address")
	flags.Duration("history-ttl", 24*time.Hour, "how long converted results stay shareable")
}

func (l *viperLoader) Load(flags *pflag.FlagSet, positional []string) (Config, error) {
	_ = l

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, fallback := range map[string]string{
		"github.token":    "GITHUB_TOKEN",
		"openai.api_key":  "OPENAI_API_KEY",
		"youtube.api_key": "YOUTUBE_API_KEY",
	} {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), fallback); err != nil {
			return Config{}, WrapError("bind env", err)
		}
	}

	file, err := readConfigFile(v, flags)
	if err != nil {
		return Config{}, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, WrapError("bind flags", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, WrapError("decode", NewValidationError("config", err.Error()))
	}
	cfg.Positional = append([]string(nil), positional...)
	cfg.File = file

	if err := Validate(cfg); err != nil {
		return Config{}, WrapError("validate", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.token", "")
	v.SetDefault("github.graphql_url", "")
	v.SetDefault("github.rest_url", "")
	v.SetDefault("reddit.base_url", "")
	v.SetDefault("reddit.user_agent", "")
	v.SetDefault("reddit.listing_pages", 1)
	v.SetDefault("hackernews.base_url", "")
	v.SetDefault("bluesky.base_url", "")
	v.SetDefault("youtube.api_key", "")
	v.SetDefault("youtube.base_url", "")

	v.SetDefault("fetch.max_attempts", 5)
	v.SetDefault("fetch.fallback_delay", 60*time.Second)
	v.SetDefault("fetch.max_pages", 1000)
	v.SetDefault("fetch.include_comments", true)
	v.SetDefault("fetch.collections", []string{"issues", "pull_requests", "discussions"})
	v.SetDefault("fetch.fail_fast", []int{})

	v.SetDefault("analysis.enabled", false)
	v.SetDefault("analysis.budget", 350000)
	v.SetDefault("analysis.concurrency", 1)
	v.SetDefault("analysis.fragment_size", 32)
	v.SetDefault("analysis.fragment_delay", 15*time.Millisecond)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "")
	v.SetDefault("openai.language", "")

	v.SetDefault("output", "")
	v.SetDefault("format", "markdown")
	v.SetDefault("stdout", false)
	v.SetDefault("force", false)
	v.SetDefault("input_file", "")
	v.SetDefault("stream", false)
	v.SetDefault("pretty", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("web.addr", ":8080")
	v.SetDefault("web.base_url", "")
	v.SetDefault("web.cors_origins", []string{"*"})
	v.SetDefault("history.ttl", 24*time.Hour)
}

// readConfigFile reads --config, THREADDIGEST_CONFIG or .threaddigest.yaml
// from the working or home directory. A missing default file is not an error.
func readConfigFile(v *viper.Viper, flags *pflag.FlagSet) (string, error) {
	path := os.Getenv(envPrefix + "_CONFIG")
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", WrapError("read file", &FileError{Path: v.ConfigFileUsed(), Err: err})
	}
	return filepath.Clean(v.ConfigFileUsed()), nil
}

var validate = newValidator()

// fieldValidator pairs the struct validator with the translator that turns
// field errors into short option messages.
type fieldValidator struct {
	v     *validator.Validate
	trans ut.Translator
}

func newValidator() fieldValidator {
	enLoc := en.New()
	trans, _ := ut.New(enLoc, enLoc).GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = en_translations.RegisterDefaultTranslations(v, trans)

	// The field name is already part of ValidationError, so these omit it.
	registerShort(v, trans, "oneof", "must be one of {0}, got {1}", func(fe validator.FieldError) []string {
		return []string{strings.ReplaceAll(fe.Param(), " ", ", "), fmt.Sprintf("%q", fmt.Sprint(fe.Value()))}
	})
	registerShort(v, trans, "min", "must be at least {0}", paramOnly)
	registerShort(v, trans, "gt", "must be greater than {0}", paramOnly)
	registerShort(v, trans, "gte", "must be at least {0}", paramOnly)
	registerShort(v, trans, "lte", "must be at most {0}", paramOnly)
	registerShort(v, trans, "url", "must be an absolute URL", noParams)
	registerShort(v, trans, "required", "is required", noParams)

	return fieldValidator{v: v, trans: trans}
}

func registerShort(v *validator.Validate, trans ut.Translator, tag, text string, params func(validator.FieldError) []string) {
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error {
			return t.Add(tag, text, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(tag, params(fe)...)
			if err != nil {
				return fmt.Sprintf("failed %q check", fe.Tag())
			}
			return msg
		},
	)
}

func paramOnly(fe validator.FieldError) []string { return []string{fe.Param()} }

func noParams(validator.FieldError) []string { return nil }

// Validate checks field constraints and option conflicts. The first failing
// field is reported as a *ValidationError.
func Validate(cfg Config) error {
	if err := validate.v.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
			return err
		}
		return fieldError(fieldErrs[0], validate.trans)
	}
	if cfg.Stdout && cfg.InputFile != "" {
		return NewConflictError("--stdout", "--input-file", "batch results are written to files")
	}
	return nil
}

package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vango-dev/servedev/internal/errors"
	"github.com/vango-dev/servedev/internal/listen"
)

const (
	// DefaultListen is the default listen address.
	DefaultListen = "tcp://localhost:3000"

	// DefaultConfigFile is the config file looked up relative to the working directory.
	DefaultConfigFile = "./serve.json"

	// DefaultReload is the default push-notification path.
	DefaultReload = "/__reload"

	// DefaultProgram is the default build program.
	DefaultProgram = "make"

	// DefaultCORS is the default Access-Control-Allow-Origin value.
	DefaultCORS = "*"
)

// Flag and config-file keys.
const (
	KeyListen  = "listen"
	KeyHTTPS   = "https"
	KeyCert    = "cert"
	KeyKey     = "key"
	KeyConfig  = "config"
	KeyReload  = "reload"
	KeyWatch   = "watch"
	KeyMake    = "make"
	KeyProgram = "program"
	KeyCORS    = "cors"
	KeyMetrics = "metrics"
	KeyVerbose = "verbose"
	KeyNoColor = "no-color"
	KeyPublic  = "public"
	keyDirList = "directoryListing"
	keyClean   = "cleanUrls"
)

// Config is the resolved serve-dev configuration. It is not modified after Load.
type Config struct {
	// Public is the absolute path of the directory being served.
	Public string

	// Listen is the listen string as given; Target is its parsed form.
	Listen string
	Target listen.Target

	// HTTPS enables TLS with the Cert and Key PEM files.
	HTTPS bool
	Cert  string
	Key   string

	// ConfigPath is the absolute path of the JSON config file, and
	// ConfigLoaded reports whether it existed.
	ConfigPath   string
	ConfigLoaded bool

	// Reload is the push-notification path.
	Reload string

	// Watch and Make are the raw pattern and target lists.
	Watch []string
	Make  []string

	// Bindings pairs Watch with Make by position.
	Bindings []Binding

	// Program runs build targets.
	Program string

	// CORS is the Access-Control-Allow-Origin value for static responses.
	CORS string

	// Metrics is the path of the Prometheus endpoint. Empty disables it.
	Metrics string

	Verbose bool
	NoColor bool

	// Static holds the file-server options from the config file.
	Static StaticOptions
}

// StaticOptions configures the static file handler.
type StaticOptions struct {
	// CleanURLs serves /page from page.html (default: true).
	CleanURLs bool `mapstructure:"cleanUrls"`

	// DirectoryListing lists directories that have no index.html.
	DirectoryListing bool `mapstructure:"directoryListing"`

	// Rewrites map matching request paths to another path.
	Rewrites []Rewrite `mapstructure:"rewrites"`

	// Headers adds response headers to matching paths.
	Headers []HeaderRule `mapstructure:"headers"`
}

// Rewrite maps request paths matching Source (a glob) to Destination.
type Rewrite struct {
	Source      string `mapstructure:"source"`
	Destination string `mapstructure:"destination"`
}

// HeaderRule applies Headers to request paths matching Source (a glob).
type HeaderRule struct {
	Source  string   `mapstructure:"source"`
	Headers []Header `mapstructure:"headers"`
}

// Header is one response header.
type Header struct {
	Key   string `mapstructure:"key"`
	Value string `mapstructure:"value"`
}

// Watching reports whether any watch pattern is configured.
func (c *Config) Watching() bool {
	return len(c.Bindings) > 0
}

// UnboundTargets returns the build targets that have no watch pattern.
func (c *Config) UnboundTargets() []string {
	return UnboundTargets(c.Watch, c.Make)
}

// RegisterFlags adds the serve-dev flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyListen, "l", DefaultListen, "listen address: port, tcp://host:port, unix:/path or pipe:\\\\.\\pipe\\name")
	fs.Bool(KeyHTTPS, false, "serve over HTTPS (requires --cert and --key)")
	fs.String(KeyCert, "", "path to the TLS certificate PEM file")
	fs.String(KeyKey, "", "path to the TLS private key PEM file")
	fs.StringP(KeyConfig, "c", DefaultConfigFile, "path to the JSON config file")
	fs.String(KeyReload, DefaultReload, "path that opens the reload event stream")
	fs.StringArray(KeyWatch, nil, "glob pattern to watch (repeatable)")
	fs.StringArray(KeyMake, nil, "build target paired with the --watch at the same position (repeatable)")
	fs.String(KeyProgram, DefaultProgram, "program used to run build targets")
	fs.String(KeyCORS, DefaultCORS, "Access-Control-Allow-Origin value")
	fs.String(KeyMetrics, "", "path of the Prometheus metrics endpoint (disabled when empty)")
	fs.BoolP(KeyVerbose, "v", false, "enable debug logging")
	fs.Bool(KeyNoColor, false, "disable colored output")
}

// Load resolves the configuration relative to the working directory.
// args are the positional arguments; the first one is the root to serve.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.FromError(err, errors.CodeWorkingDir)
	}
	return LoadIn(wd, fs, args)
}

// LoadIn resolves the configuration relative to dir.
func LoadIn(dir string, fs *pflag.FlagSet, args []string) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyListen, DefaultListen)
	v.SetDefault(KeyConfig, DefaultConfigFile)
	v.SetDefault(KeyReload, DefaultReload)
	v.SetDefault(KeyProgram, DefaultProgram)
	v.SetDefault(KeyCORS, DefaultCORS)
	v.SetDefault(keyDirList, true)
	v.SetDefault(keyClean, true)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, errors.New(errors.CodeConfigValue).Wrap(err)
		}
	}

	cfg := &Config{
		ConfigPath: resolvePath(dir, v.GetString(KeyConfig)),
	}

	settings, err := readConfigFile(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		cfg.ConfigLoaded = true
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, errors.New(errors.CodeConfigParse).Wrap(err)
		}
	}

	cfg.Public = dir
	if len(args) > 0 && args[0] != "" {
		cfg.Public = resolvePath(dir, args[0])
	}
	if v.InConfig(KeyPublic) {
		cfg.Public = resolvePath(dir, v.GetString(KeyPublic))
	}

	cfg.Listen = v.GetString(KeyListen)
	cfg.HTTPS = v.GetBool(KeyHTTPS)
	cfg.Cert = v.GetString(KeyCert)
	cfg.Key = v.GetString(KeyKey)
	cfg.Reload = v.GetString(KeyReload)
	cfg.Program = v.GetString(KeyProgram)
	cfg.CORS = v.GetString(KeyCORS)
	cfg.Metrics = v.GetString(KeyMetrics)
	cfg.Verbose = v.GetBool(KeyVerbose)
	cfg.NoColor = v.GetBool(KeyNoColor)

	if cfg.Watch, err = listSetting(v, fs, KeyWatch); err != nil {
		return nil, err
	}
	if cfg.Make, err = listSetting(v, fs, KeyMake); err != nil {
		return nil, err
	}
	cfg.Bindings = Bind(cfg.Watch, cfg.Make)

	if err := v.Unmarshal(&cfg.Static); err != nil {
		return nil, errors.New(errors.CodeConfigValue).
			WithDetail("Invalid static options in " + cfg.ConfigPath).
			Wrap(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks values and parses the listen address.
func (c *Config) validate() error {
	target, err := listen.Parse(c.Listen)
	if err != nil {
		return err
	}
	c.Target = target

	if !strings.HasPrefix(c.Reload, "/") {
		return errors.New(errors.CodeConfigValue).
			WithDetailf("--reload must be an absolute URL path, got %q", c.Reload)
	}
	if c.Metrics != "" {
		if !strings.HasPrefix(c.Metrics, "/") {
			return errors.New(errors.CodeConfigValue).
				WithDetailf("--metrics must be an absolute URL path, got %q", c.Metrics)
		}
		if c.Metrics == c.Reload {
			return errors.New(errors.CodeConfigValue).
				WithDetailf("--metrics and --reload cannot share the path %q", c.Metrics)
		}
	}
	if strings.TrimSpace(c.Program) == "" && len(c.Make) > 0 {
		return errors.New(errors.CodeConfigValue).
			WithDetail("--program cannot be empty when build targets are configured")
	}

	if c.HTTPS {
		if c.Cert == "" || c.Key == "" {
			return errors.New(errors.CodeTLSMaterial).
				WithSuggestion("Pass --cert cert.pem --key key.pem")
		}
		for _, path := range []string{c.Cert, c.Key} {
			if _, err := os.Stat(path); err != nil {
				return errors.New(errors.CodeTLSMaterial).
					WithDetailf("cannot read %s", path).
					Wrap(err)
			}
		}
	}
	return nil
}

// readConfigFile reads a JSON object from path. A missing file yields nil.
func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.New(errors.CodeConfigRead).
			WithDetail("Cannot read " + path).
			Wrap(err)
	}

	settings := make(map[string]any)
	if err := json.Unmarshal(data, &settings); err != nil {
		se := errors.New(errors.CodeConfigParse).
			WithDetail("Failed to parse " + filepath.Base(path)).
			WithSuggestion("Check that " + filepath.Base(path) + " is a valid JSON object").
			Wrap(err)

		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case stderrors.As(err, &syntaxErr):
			line, col := position(data, syntaxErr.Offset)
			se.WithLocation(path, line, col)
		case stderrors.As(err, &typeErr):
			line, col := position(data, typeErr.Offset)
			se.WithLocation(path, line, col)
		}
		return nil, se
	}
	return settings, nil
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, col := 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// listSetting reads a list key. Explicit flags are taken from fs as given so
// patterns containing commas survive intact.
func listSetting(v *viper.Viper, fs *pflag.FlagSet, key string) ([]string, error) {
	if fs != nil && fs.Changed(key) {
		return fs.GetStringArray(key)
	}
	return stringList(key, v.Get(key))
}

// stringList accepts a single string or a list of strings.
func stringList(key string, value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New(errors.CodeConfigValue).
					WithDetailf("%s entries must be strings, got %v", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.New(errors.CodeConfigValue).
			WithDetail(fmt.Sprintf("%s must be a string or a list of strings, got %T", key, value))
	}
}

func resolvePath(dir, path string) string {
	if path == "" {
		return dir
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

package config

import (
	"os"
	"regexp"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
)

// matches $(VAR_NAME)
var envPattern = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// replaces $(VAR) with os.Getenv(VAR)
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		key := mapEnvKey(envPattern.FindStringSubmatch(m)[1])
		return os.Getenv(key)
	})
}

// expandingParser expands $(VAR) placeholders before handing the file to
// the wrapped parser.
type expandingParser struct {
	koanf.Parser
}

func (p expandingParser) Unmarshal(b []byte) (map[string]any, error) {
	return p.Parser.Unmarshal([]byte(expandEnvVars(string(b))))
}

// mapProvider feeds an in-memory map to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: map provider has no byte form")
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

// Loader builds a Config from defaults, an optional YAML file, the
// environment and explicit overrides, in that order.
type Loader struct {
	file      string
	overrides map[string]any
}

type Option func(*Loader)

// WithConfigFile reads path between the defaults and the environment.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.file = path }
}

// WithOverride sets key after every other layer. The CLI uses it for flags.
func WithOverride(key string, value any) Option {
	return func(l *Loader) { l.overrides[key] = value }
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{overrides: map[string]any{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// File is the config file this loader reads, if any.
func (l *Loader) File() string {
	return l.file
}

// Load reads every layer again and returns a fresh Config. It does not
// validate; see Config.Validate.
func (l *Loader) Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, snaperrors.MarkConfig(errors.Wrap(err, "loading defaults"))
	}

	if l.file != "" {
		if err := k.Load(file.Provider(l.file), expandingParser{yaml.Parser()}); err != nil {
			return nil, snaperrors.MarkConfig(errors.Wrapf(err, "loading config file %s", l.file))
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, snaperrors.MarkConfig(errors.Wrap(err, "loading environment"))
	}

	for key, v := range l.overrides {
		if err := k.Set(key, v); err != nil {
			return nil, snaperrors.MarkConfig(errors.Wrapf(err, "setting %s", key))
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, snaperrors.MarkConfig(errors.Wrap(err, "decoding config"))
	}
	return &cfg, nil
}

// Load is a shorthand for NewLoader(WithConfigFile(path)).Load().
func Load(path string) (*Config, error) {
	return NewLoader(WithConfigFile(path)).Load()
}

// DefaultConfigFile returns snapmirror/config.yaml from the XDG config
// directories, or "" when there is none.
func DefaultConfigFile() string {
	path, err := xdg.SearchConfigFile("snapmirror/config.yaml")
	if err != nil {
		return ""
	}
	return path
}

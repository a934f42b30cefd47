// Package config loads rr-recursor settings from defaults, an optional
// config file and DNS_* environment variables, in that order of precedence
// from lowest to highest, and validates the result.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnv names the variable pointing at an optional config file.
const ConfigFileEnv = "DNS_CONFIG_FILE"

// AppConfig holds the daemon configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Transport is the listener protocol. Only "udp" is served.
	Transport string `koanf:"transport" validate:"required,oneof=udp"`

	// Port is the UDP port the server binds to.
	Port int `koanf:"port" validate:"required,gte=1,lte=65535"`

	// MaxInflight bounds concurrently handled datagrams. 1 handles them one at a time.
	MaxInflight int `koanf:"max_inflight" validate:"gte=1"`

	// ResolverTimeout bounds a single exchange with one name server.
	ResolverTimeout time.Duration `koanf:"resolver_timeout" validate:"gt=0"`

	// ResolverMaxSteps is the exchange budget for one recursive lookup.
	ResolverMaxSteps int `koanf:"resolver_max_steps" validate:"gte=1"`

	// ResolverPort is the port used when contacting delegated name servers.
	ResolverPort int `koanf:"resolver_port" validate:"gte=1,lte=65535"`

	// RootHintsFile is an optional YAML/JSON/TOML root hints file. It takes
	// precedence over RootServers.
	RootHintsFile string `koanf:"root_hints_file"`

	// RootServers lists root servers in ip:port format.
	RootServers []string `koanf:"root_servers" validate:"omitempty,dive,ip_port"`

	// BlocklistFile is a plain or hosts style list. Empty disables blocking.
	BlocklistFile string `koanf:"blocklist_file"`

	// BlocklistDB is the bbolt index path used when BlocklistFile is set.
	BlocklistDB string `koanf:"blocklist_db" validate:"required_with=BlocklistFile"`

	// BlocklistCacheSize is the decision LRU size; 0 disables the cache.
	BlocklistCacheSize int `koanf:"blocklist_cache_size" validate:"gte=0"`

	// StatsTopSize is the number of apex domains tracked by query statistics.
	StatsTopSize int `koanf:"stats_top_size" validate:"gte=1"`
}

// DEFAULT_APP_CONFIG holds the values used for every key not set elsewhere.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                "prod",
	LogLevel:           "info",
	Transport:          "udp",
	Port:               53,
	MaxInflight:        1,
	ResolverTimeout:    5 * time.Second,
	ResolverMaxSteps:   32,
	ResolverPort:       53,
	RootServers:        []string{"198.41.0.4:53"},
	BlocklistDB:        "/var/lib/rr-recursor/blocklist.db",
	BlocklistCacheSize: 1000,
	StatsTopSize:       100,
}

// validIPPort reports whether the field is an "IP:port" pair with a port in 1-65535.
func validIPPort(fl validator.FieldLevel) bool {
	ip, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads DNS_* variables as lowercase keys without the prefix.
// Values containing spaces or commas become lists.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "DNS_"))
			value = strings.TrimSpace(value)

			if strings.ContainsAny(value, " ,") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}
			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads path with the parser matching its extension.
var fileLoader = func(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	return k.Load(file.Provider(path), parser)
}

// registerValidation registers the "ip_port" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load builds the configuration and validates it.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

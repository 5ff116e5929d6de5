package shellcache

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration of the shellcache proxy.
type FileConfig struct {
	Origin         string        `yaml:"origin"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Version        string        `yaml:"version"`
	CachePrefix    string        `yaml:"cachePrefix"`
	OfflinePage    string        `yaml:"offlinePage"`
	StaticPrefixes []string      `yaml:"staticPrefixes"`
	Shell          []string      `yaml:"shell"`
	Storage        StorageConfig `yaml:"storage"`
}

type StorageConfig struct {
	// memory, sqlite, leveldb or valkey
	Provider string `yaml:"provider"`
	// SQLite file or LevelDB directory
	Path string `yaml:"path"`
	// Valkey server address
	Address   string `yaml:"address"`
	KeyPrefix string `yaml:"keyPrefix"`
}

const (
	ProviderMemory  = "memory"
	ProviderSQLite  = "sqlite"
	ProviderLevelDB = "leveldb"
	ProviderValkey  = "valkey"
)

// LoadConfig reads the YAML file and fills in defaults.
// The result is not validated.
func LoadConfig(filename string) (FileConfig, error) {
	var config FileConfig
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, err
	}
	config.SetDefaults()
	return config, nil
}

func (c *FileConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.OfflinePage == "" {
		c.OfflinePage = DefaultOfflinePage
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = ProviderSQLite
	}
	if c.Storage.Path == "" {
		switch c.Storage.Provider {
		case ProviderSQLite:
			c.Storage.Path = "cache.db"
		case ProviderLevelDB:
			c.Storage.Path = "cache.leveldb"
		}
	}
}

var cachePrefixPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

func (c FileConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Origin, validation.Required, validation.By(absoluteHttpURL)),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Version, validation.Required),
		validation.Field(&c.CachePrefix, validation.Required,
			validation.Match(cachePrefixPattern).Error("must only contain letters, digits, '_' and '.'")),
		validation.Field(&c.Shell, validation.Each(validation.By(absolutePath))),
		validation.Field(&c.OfflinePage, validation.Required, validation.By(absolutePath),
			validation.In(stringsToAny(c.Shell)...).Error("must be one of the shell paths")),
		validation.Field(&c.StaticPrefixes, validation.Each(validation.By(absolutePath))),
		validation.Field(&c.Storage),
	)
}

func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Provider, validation.Required,
			validation.In(ProviderMemory, ProviderSQLite, ProviderLevelDB, ProviderValkey)),
		validation.Field(&s.Path, validation.When(s.Provider == ProviderLevelDB, validation.Required)),
		validation.Field(&s.Address, validation.When(s.Provider == ProviderValkey, validation.Required)),
	)
}

// WorkerConfig converts the file configuration to a worker configuration.
// Storage, transport and logger are left for the caller to set.
func (c FileConfig) WorkerConfig() (Config, error) {
	origin, err := url.Parse(c.Origin)
	if err != nil {
		return Config{}, err
	}
	return Config{
		OriginURL:      *origin,
		Version:        c.Version,
		CachePrefix:    c.CachePrefix,
		Shell:          c.Shell,
		OfflinePage:    c.OfflinePage,
		StaticPrefixes: c.StaticPrefixes,
	}, nil
}

func absoluteHttpURL(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	if u.Path != "" && u.Path != "/" {
		return errors.New("must not have a path")
	}
	return nil
}

func absolutePath(value interface{}) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "/") {
		return fmt.Errorf("%q must start with '/'", s)
	}
	return nil
}

func stringsToAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "OCENA"
	defaultHTTPAddress         = "0.0.0.0:8000"
	defaultDatabasePath        = "ocena.db"
	defaultLogLevel            = "info"
	defaultGophieHost          = "https://deploy-gophie.herokuapp.com"
	defaultMythraHost          = "https://gophie-mythra.herokuapp.com"
	defaultUpstreamTimeoutSecs = 15
	defaultUpstreamRetries     = 1
	defaultListCacheSize       = 4096
	defaultSearchCacheSize     = 4096
	defaultDownloadsCacheSize  = 128
	defaultReferralCacheSize   = 256
)

// Rating identity modes decide which columns back rating uniqueness.
const (
	RatingIdentityIP     = "ip"
	RatingIdentityIPUser = "ip_user"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	GophieHost         string
	GophieAccessKey    string
	MythraHost         string
	UpstreamTimeout    time.Duration
	UpstreamRetries    int
	ListCacheSize      int
	SearchCacheSize    int
	DownloadsCacheSize int
	ReferralCacheSize  int
	SigningSecret      string
	RatingIdentity     string
	AllowedOrigins     []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("gophie.host", defaultGophieHost)
	configViper.SetDefault("gophie.access_key", "")
	configViper.SetDefault("mythra.host", defaultMythraHost)
	configViper.SetDefault("upstream.timeout_seconds", defaultUpstreamTimeoutSecs)
	configViper.SetDefault("upstream.retries", defaultUpstreamRetries)
	configViper.SetDefault("cache.list_size", defaultListCacheSize)
	configViper.SetDefault("cache.search_size", defaultSearchCacheSize)
	configViper.SetDefault("cache.downloads_size", defaultDownloadsCacheSize)
	configViper.SetDefault("cache.referral_size", defaultReferralCacheSize)
	configViper.SetDefault("rating.identity", RatingIdentityIP)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		GophieHost:         configViper.GetString("gophie.host"),
		GophieAccessKey:    configViper.GetString("gophie.access_key"),
		MythraHost:         configViper.GetString("mythra.host"),
		UpstreamTimeout:    time.Duration(configViper.GetInt("upstream.timeout_seconds")) * time.Second,
		UpstreamRetries:    configViper.GetInt("upstream.retries"),
		ListCacheSize:      configViper.GetInt("cache.list_size"),
		SearchCacheSize:    configViper.GetInt("cache.search_size"),
		DownloadsCacheSize: configViper.GetInt("cache.downloads_size"),
		ReferralCacheSize:  configViper.GetInt("cache.referral_size"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		RatingIdentity:     configViper.GetString("rating.identity"),
		AllowedOrigins:     configViper.GetStringSlice("http.allowed_origins"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.GophieHost) == "" {
		return fmt.Errorf("gophie.host is required")
	}
	if strings.TrimSpace(c.MythraHost) == "" {
		return fmt.Errorf("mythra.host is required")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout_seconds must be positive")
	}
	if c.UpstreamRetries < 0 {
		return fmt.Errorf("upstream.retries must not be negative")
	}
	if c.RatingIdentity != RatingIdentityIP && c.RatingIdentity != RatingIdentityIPUser {
		return fmt.Errorf("rating.identity must be %q or %q", RatingIdentityIP, RatingIdentityIPUser)
	}
	return nil
}

package config

import (
	"time"

	pkgconfig "github.com/echoface/adloader/pkg/config"
)

// ServerConfig configures cmd/waterfall_server.
type ServerConfig struct {
	pkgconfig.BaseConfig `mapstructure:",squash"`

	Waterfall WaterfallConfig `mapstructure:"waterfall"`
	Store     StoreConfig     `mapstructure:"store"`
	AdUnits   []AdUnitConfig  `mapstructure:"ad_units"`
}

type WaterfallConfig struct {
	PageSize int `mapstructure:"page_size"`
	// BaseURL prefixes next-page and tracking URLs; empty means the
	// request's own host.
	BaseURL string `mapstructure:"base_url"`
}

type StoreConfig struct {
	Backend   string        `mapstructure:"backend"` // memory or s3
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	S3        S3Config      `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// AdUnitConfig seeds the memory store.
type AdUnitConfig struct {
	ID      string        `mapstructure:"id"`
	Format  string        `mapstructure:"format"`
	Entries []EntryConfig `mapstructure:"entries"`
}

type EntryConfig struct {
	AdType               string            `mapstructure:"ad_type"`
	Body                 string            `mapstructure:"body"`
	NetworkType          string            `mapstructure:"network_type"`
	CustomEventClassName string            `mapstructure:"custom_event_class_name"`
	Extras               map[string]string `mapstructure:"extras"`
	BeforeLoadURL        string            `mapstructure:"before_load_url"`
	AfterLoadURLs        []string          `mapstructure:"after_load_urls"`
	ImpTrackers          []string          `mapstructure:"imp_trackers"`
	ClickThrough         string            `mapstructure:"click_through"`
	RefreshTime          int               `mapstructure:"refresh_time"`
}

// ClientConfig configures cmd/waterfall_client.
type ClientConfig struct {
	pkgconfig.BaseConfig `mapstructure:",squash"`

	Loader     LoaderConfig     `mapstructure:"loader"`
	Beacon     BeaconConfig     `mapstructure:"beacon"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

type LoaderConfig struct {
	ServerURL   string        `mapstructure:"server_url"`
	AdUnitID    string        `mapstructure:"ad_unit_id"`
	AdFormat    string        `mapstructure:"ad_format"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
	UserAgent   string        `mapstructure:"user_agent"`
}

type BeaconConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxConcurrency   int           `mapstructure:"max_concurrency"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	CoolDown         time.Duration `mapstructure:"cool_down"`
}

// SimulationConfig drives the fake creative downloads of the client.
type SimulationConfig struct {
	FailureRate float64       `mapstructure:"failure_rate"` // 0..1
	Seed        int64         `mapstructure:"seed"`
	MaxAds      int           `mapstructure:"max_ads"`
	Deadline    time.Duration `mapstructure:"deadline"`
}

func NewDefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		BaseConfig: *pkgconfig.DefaultBaseConfig(),
		Waterfall:  WaterfallConfig{PageSize: 2},
		Store: StoreConfig{
			Backend:   "memory",
			CacheSize: 1000,
			CacheTTL:  time.Minute,
		},
	}
}

func NewDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseConfig: *pkgconfig.DefaultBaseConfig(),
		Loader: LoaderConfig{
			ServerURL:   "http://localhost:8080",
			AdFormat:    "interstitial",
			Timeout:     10 * time.Second,
			MaxInFlight: 4,
			UserAgent:   "adloader/1.0",
		},
		Beacon: BeaconConfig{
			Enabled:          true,
			MaxConcurrency:   8,
			Timeout:          5 * time.Second,
			MaxRetries:       2,
			FailureThreshold: 5,
			CoolDown:         30 * time.Second,
		},
		Simulation: SimulationConfig{
			FailureRate: 0.5,
			MaxAds:      20,
			Deadline:    time.Minute,
		},
	}
}

package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/echoface/adloader/pkg/config"
)

const (
	ServerServiceName = "waterfall_server"
	ClientServiceName = "waterfall_client"
)

// LoadServerConfig loads the server config for the current RUN_TYPE, or
// from path when it is not empty.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := NewDefaultServerConfig()
	if err := load(ServerServiceName, path, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := NewDefaultClientConfig()
	if err := load(ClientServiceName, path, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func load(service, path string, out interface{}) error {
	loader := pkgconfig.NewLoader(service)
	if path != "" {
		return loader.LoadFile(path, out)
	}
	return loader.Load(out)
}

func (c *ServerConfig) Validate() error {
	if c.Waterfall.PageSize <= 0 {
		c.Waterfall.PageSize = 2
	}
	if c.Store.CacheTTL <= 0 {
		c.Store.CacheTTL = time.Minute
	}
	switch c.Store.Backend {
	case "", "memory":
		c.Store.Backend = "memory"
	case "s3":
		if c.Store.S3.Endpoint == "" || c.Store.S3.BucketName == "" {
			return fmt.Errorf("store.s3 requires endpoint and bucket_name")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	for i, unit := range c.AdUnits {
		if unit.ID == "" {
			return fmt.Errorf("ad_units[%d]: empty id", i)
		}
	}
	return nil
}

func (c *ClientConfig) Validate() error {
	if c.Loader.ServerURL == "" {
		return fmt.Errorf("loader.server_url is required")
	}
	if c.Loader.AdUnitID == "" {
		return fmt.Errorf("loader.ad_unit_id is required")
	}
	if c.Simulation.FailureRate < 0 || c.Simulation.FailureRate > 1 {
		return fmt.Errorf("simulation.failure_rate must be within [0, 1], got %v", c.Simulation.FailureRate)
	}
	if c.Simulation.MaxAds <= 0 {
		c.Simulation.MaxAds = 20
	}
	if c.Simulation.Deadline <= 0 {
		c.Simulation.Deadline = time.Minute
	}
	return nil
}

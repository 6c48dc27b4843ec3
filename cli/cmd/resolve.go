package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/MateoLopez004/Gobackup/cli/config"
	"github.com/MateoLopez004/Gobackup/remote"
)

// Precedence for every setting: explicit flag (or its env var), then the
// config file, then the flag default.

// resolveString returns the flag value if set, else cfgVal if non-empty,
// else the flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

// resolveInt returns the flag value if set, else cfgVal if non-zero,
// else the flag default.
func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

// resolveBool returns the flag value if set, else flag default OR cfgVal.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

// resolveDuration returns the flag value if set, else cfgVal if non-zero,
// else the flag default.
func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// configVal reads a field from a possibly nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

// loadConfig loads --config when given. A missing flag yields nil.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return nil, nil
	}
	return config.Load(path)
}

// newClient builds a service client from flags and config.
func newClient(c *cli.Context, cfg *config.Config) (*remote.Client, error) {
	client, err := remote.New(remote.Config{
		BaseURL: resolveString(c, "server", configVal(cfg, func(c *config.Config) string { return c.Server.URL })),
		Timeout: resolveDuration(c, "timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Server.Timeout.Duration })),
		Headers: configVal(cfg, func(c *config.Config) map[string]string { return c.Server.Headers }),
	})
	if err != nil {
		return nil, fmt.Errorf("invalid --server: %w", err)
	}
	return client, nil
}

// queryClient loads config and builds a client for read-only commands.
func queryClient(c *cli.Context) (*remote.Client, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	client, err := newClient(c, cfg)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return client, nil
}

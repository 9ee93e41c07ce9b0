// Package temporalclient builds Temporal client options from the SDK's
// envconfig sources (TEMPORAL_* environment variables and the profile TOML
// file), with command-line overrides on top.
package temporalclient

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/contrib/envconfig"
	"go.temporal.io/sdk/log"
)

// Overrides take precedence over envconfig values when non-empty.
type Overrides struct {
	HostPort  string
	Namespace string
	Logger    log.Logger
}

// LoadClientOptions resolves client options for the default profile.
func LoadClientOptions(o Overrides) (client.Options, error) {
	opts, err := envconfig.LoadClientOptions(envconfig.LoadClientOptionsRequest{})
	if err != nil {
		return client.Options{}, fmt.Errorf("load temporal client options: %w", err)
	}
	if o.HostPort != "" {
		opts.HostPort = o.HostPort
	}
	if o.Namespace != "" {
		opts.Namespace = o.Namespace
	}
	if o.Logger != nil {
		opts.Logger = o.Logger
	}
	return opts, nil
}

// Dial loads options and connects.
func Dial(o Overrides) (client.Client, error) {
	opts, err := LoadClientOptions(o)
	if err != nil {
		return nil, err
	}
	c, err := client.Dial(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to temporal at %s: %w", opts.HostPort, err)
	}
	return c, nil
}

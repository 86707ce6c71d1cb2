// Package commands implements the calculator command line tool.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/calcsite/calculator-sdk-go/calculator"
	"github.com/calcsite/calculator-sdk-go/config"
	"github.com/calcsite/calculator-sdk-go/logger"
	"github.com/calcsite/calculator-sdk-go/observability"
)

// GlobalOptions holds flags shared by every subcommand.
type GlobalOptions struct {
	ConfigPath string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	NoCache    bool
	Debug      bool
	JSON       bool
	// Trace is a trace exporter endpoint; "stdout" prints spans to stderr.
	Trace string
}

// NewRootCommand creates the calculator command with all subcommands attached.
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	root := &cobra.Command{
		Use:   "calculator",
		Short: "Query the Calculator API from the command line",
		Long: `Command line client for the Calculator API.

Configuration is read from the file given with --config, then from
CALCULATOR_* environment variables. Flags override both.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.APIKey, "api-key", "", "API key (default $CALCULATOR_APIKEY)")
	flags.StringVar(&opts.BaseURL, "base-url", "", "API base URL")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "Per-attempt timeout")
	flags.IntVar(&opts.MaxRetries, "max-retries", -1, "Retries after the first attempt")
	flags.BoolVar(&opts.NoCache, "no-cache", false, "Disable the result cache")
	flags.BoolVar(&opts.Debug, "debug", false, "Log every request, response and retry")
	flags.BoolVar(&opts.JSON, "json", false, "Print the raw JSON response")
	flags.StringVar(&opts.Trace, "trace", "", `Export spans to "stdout" or an OTLP endpoint`)

	root.AddCommand(
		NewListCommand(opts),
		NewCalculateCommand(opts),
		NewVersionCommand(version),
	)

	return root
}

// overrides returns the config keys set explicitly on the command line.
func (o *GlobalOptions) overrides() map[string]any {
	m := make(map[string]any)
	if o.APIKey != "" {
		m["apikey"] = o.APIKey
	}
	if o.BaseURL != "" {
		m["baseurl"] = o.BaseURL
	}
	if o.Timeout > 0 {
		m["timeout"] = o.Timeout.String()
	}
	if o.MaxRetries >= 0 {
		m["maxretries"] = o.MaxRetries
	}
	if o.NoCache {
		m["cacheenabled"] = false
	}
	if o.Debug {
		m["debug"] = true
	}
	if o.Trace != "" {
		m["telemetry.enabled"] = true
		m["telemetry.trace.endpoint"] = o.Trace
	}
	return m
}

// newClient loads the configuration, installs telemetry and builds a client.
// The returned cleanup closes the client and flushes telemetry.
func (o *GlobalOptions) newClient(cmd *cobra.Command) (*calculator.Client, func(), error) {
	cfg, err := config.LoadWithOverrides(o.ConfigPath, o.overrides())
	if err != nil {
		return nil, nil, err
	}

	provider, err := observability.NewProvider(cfg.Telemetry,
		observability.WithWriter(cmd.ErrOrStderr()),
		observability.WithServiceVersion(cfg.Version),
	)
	if err != nil {
		return nil, nil, err
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel(), cfg.Log.Pretty, logger.DefaultFilterConfig())
	client, err := calculator.New(*cfg, calculator.WithLogger(log))
	if err != nil {
		_ = observability.Shutdown(provider, 0)
		return nil, nil, err
	}

	cleanup := func() {
		_ = client.Close()
		if err := observability.Shutdown(provider, 0); err != nil {
			cmd.PrintErrln("Warning:", err)
		}
	}
	return client, cleanup, nil
}

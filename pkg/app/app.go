// Package app builds the standard brickdrive command-line application:
// cobra command, pflag option groups, optional viper config file, and the
// global logger, wired in a fixed order so every binary behaves the same.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brickdrive/brickdrive/pkg/log"
)

// CliOptions is implemented by the per-command options struct.
type CliOptions interface {
	// AddFlags registers all flag groups on the command.
	AddFlags(cmd *cobra.Command)

	// Complete fills in derived or defaulted values after flags are parsed.
	Complete() error

	// Validate checks the final option values.
	Validate() error
}

// RunFunc is the command's main entry point.
type RunFunc func() error

// App assembles a runnable command-line application.
type App struct {
	name        string
	short       string
	description string
	options     CliOptions
	run         RunFunc
	logOptions  *log.Options

	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithDescription sets the long command description.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithOptions attaches the command's option groups.
func WithOptions(opts CliOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the command's entry point.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.run = run
	}
}

// WithLogOptions attaches the logger options so the global logger is
// initialized before the run function starts.
func WithLogOptions(opts *log.Options) Option {
	return func(a *App) {
		a.logOptions = opts
	}
}

// NewApp creates an App with the given name and one-line summary.
func NewApp(name, short string, opts ...Option) *App {
	a := &App{
		name:  name,
		short: short,
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	var configFile string

	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.short,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(cmd, configFile); err != nil {
				return err
			}

			if a.options != nil {
				if err := a.options.Complete(); err != nil {
					return fmt.Errorf("failed to complete options: %w", err)
				}
				if err := a.options.Validate(); err != nil {
					return err
				}
			}

			if a.logOptions != nil {
				log.Init(a.logOptions)
			}

			if a.run == nil {
				return nil
			}
			return a.run()
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to an optional YAML configuration file.")

	if a.options != nil {
		a.options.AddFlags(cmd)
	}

	a.cmd = cmd
}

// loadConfig reads the config file (if any) and environment overrides into
// the options struct. Explicit flags win over file values because viper only
// fills fields whose flags were left at their defaults.
func (a *App) loadConfig(cmd *cobra.Command, configFile string) error {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %q: %w", configFile, err)
		}
	}

	v.SetEnvPrefix("BRICKDRIVE")
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if a.options != nil && configFile != "" {
		if err := v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return nil
}

// Command exposes the underlying cobra command so binaries can attach
// subcommands.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits non-zero on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.name, err)
		os.Exit(1)
	}
}

package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/mlpipe/config"
	"github.com/YuminosukeSato/mlpipe/pkg/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	artifacts  string

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	cmd := &cobra.Command{
		Use:           "mlpipe",
		Short:         "Train and serve the student math score model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: console or json")
	flags.StringVar(&opts.artifacts, "artifacts", "", "artifact directory")

	cmd.AddCommand(
		newTrainCmd(opts),
		newPredictCmd(opts),
		newSynthCmd(opts),
	)
	return cmd
}

// loadConfig reads the configuration file, if any, and applies the
// persistent flags on top.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.logLevel != "" {
		cfg.Observability.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Observability.LogFormat = o.logFormat
	}
	if o.artifacts != "" {
		cfg.SetArtifactDir(o.artifacts)
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) log.Logger {
	level := log.ToLogLevel(cfg.Observability.LogLevel)
	if cfg.Observability.LogFormat == "json" {
		return log.NewZerologProvider(level, o.stderr).GetLoggerWithName("mlpipe")
	}
	return log.NewConsoleProvider(level, o.stderr).GetLoggerWithName("mlpipe")
}

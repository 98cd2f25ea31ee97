package main

import (
	"fmt"
	"log/slog"
	"os"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/OperatorFoundation/nahoftu4i/receiver"
	"github.com/OperatorFoundation/nahoftu4i/rpc"
)

var version = "dev"

type globalOptions struct {
	configFile string
	verbose    bool
	server     string
	token      string
}

func main() {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "receiver",
		Short:   "Receive encrypted messages carried as weak-signal beacon fragments",
		Version: version,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to config file (.json or .toml)")
	flags.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging to stderr")
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "Receiver service URL for client commands")
	flags.StringVar(&opts.token, "token", os.Getenv("RECEIVER_TOKEN"), "Bearer token for client commands")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(tokenCmd(opts))
	rootCmd.AddCommand(startCmd(opts))
	rootCmd.AddCommand(simpleCmd(opts, "stop", "Stop the active session", (*rpc.Client).Stop))
	rootCmd.AddCommand(simpleCmd(opts, "extend", "Restart the background countdown", (*rpc.Client).Extend))
	rootCmd.AddCommand(attachCmd(opts))
	rootCmd.AddCommand(detachCmd(opts))
	rootCmd.AddCommand(statusCmd(opts))
	rootCmd.AddCommand(submitCmd(opts))
	rootCmd.AddCommand(inboxCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file when given, then applies the environment.
func (o *globalOptions) loadConfig() (*receiver.Config, error) {
	cfg := receiver.DefaultConfig()
	if o.configFile != "" {
		loaded, err := receiver.LoadConfig(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := receiver.ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (o *globalOptions) logger() *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *globalOptions) client() *rpc.Client {
	var opts []connect.ClientOption
	if o.token != "" {
		opts = append(opts, connect.WithInterceptors(rpc.NewTokenInterceptor(o.token)))
	}
	return rpc.NewClient(httpClient, o.server, opts...)
}

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/voyagen/iptvdeck/internal/config"
	xlog "github.com/voyagen/iptvdeck/internal/log"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "iptvdeck",
	Short: "IPTV playlist server, HLS proxy and headless player",
	Long: `iptvdeck parses and stores M3U playlists, serves their channels over HTTP
and proxies HLS streams with manifest rewriting. It can also play a stored
channel headlessly to check how a stream resolves.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (default: environment variables)")
	rootCmd.AddCommand(serveCmd, parseCmd, playCmd)
}

// loadConfig reads the config file when given, else the environment, and
// configures logging from it.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg = config.Load()
	}
	if err != nil {
		return nil, err
	}
	xlog.Configure(xlog.Config{Level: cfg.LogLevel})
	return cfg, nil
}

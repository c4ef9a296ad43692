package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voyagen/iptvdeck/internal/fetcher"
)

var (
	parseClassifier    string
	parseReportOrphans bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <file|url>",
	Short: "Parse an M3U playlist and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		name := parseClassifier
		if name == "" {
			name = cfg.Classifier
		}
		classifier, ok := fetcher.ClassifierByName(name)
		if !ok {
			return fmt.Errorf("unknown classifier %q (want group or group+url)", name)
		}

		var text string
		if src := args[0]; strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			text, err = fetcher.NewResolver(nil, cfg.UserAgent, cfg.Timeout).Resolve(cmd.Context(), src, "")
		} else {
			var b []byte
			b, err = os.ReadFile(src)
			text = string(b)
		}
		if err != nil {
			return err
		}

		res := fetcher.ParseWithOptions(text, fetcher.Options{
			Classifier:       classifier,
			ReportOrphanURLs: parseReportOrphans,
		})
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("no channels parsed")
		}
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseClassifier, "classifier", "", "content type strategy: group or group+url (default from config)")
	parseCmd.Flags().BoolVar(&parseReportOrphans, "report-orphans", false, "report stream URLs that have no #EXTINF entry")
}

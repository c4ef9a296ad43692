package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voyagen/iptvdeck/internal/hlsengine"
	"github.com/voyagen/iptvdeck/internal/player"
)

var (
	playAPI        string
	playProxy      string
	playUserAgent  string
	playQuality    string
	playFor        time.Duration
	playMaxRetries int
)

var playCmd = &cobra.Command{
	Use:   "play <channel-id>",
	Short: "Play a stored channel headlessly and print state changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid channel id %q", args[0])
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if playFor > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, playFor)
			defer cancel()
		}
		return play(ctx, cmd, id)
	},
}

func init() {
	f := playCmd.Flags()
	f.StringVar(&playAPI, "api", "http://localhost:8080", "iptvdeck server base URL")
	f.StringVar(&playProxy, "proxy-endpoint", "/api/stream/proxy", "stream proxy path on the server, empty to disable")
	f.StringVar(&playUserAgent, "user-agent", "", "user agent used for device detection")
	f.StringVar(&playQuality, "quality", "", "quality label to switch to once levels are known, e.g. 720p")
	f.DurationVar(&playFor, "for", 0, "stop after this long (default: until interrupted or ended)")
	f.IntVar(&playMaxRetries, "max-retries", 0, "cap network retries before falling back to the direct URL, 0 = no cap")
}

func play(ctx context.Context, cmd *cobra.Command, id int64) error {
	client := &http.Client{Timeout: 15 * time.Second}
	ch, err := player.FetchChannel(ctx, client, playAPI, id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "channel %d: %s (%s)\n", ch.ID, ch.Name, ch.Type)

	changes := make(chan player.Snapshot, 64)
	sess := player.New(hlsengine.NewHeadlessMedia(), &hlsengine.Factory{Client: client}, player.HTTPProber{Client: client}, player.Options{
		ProxyBase:         strings.TrimRight(playAPI, "/"),
		ProxyEndpoint:     playProxy,
		Device:            player.DetectDevice(playUserAgent),
		MaxNetworkRetries: playMaxRetries,
		OnChange: func(s player.Snapshot) {
			select {
			case changes <- s:
			default:
			}
		},
	})
	defer sess.Close()

	if err := sess.Select(*ch); err != nil {
		return err
	}

	qualitySet := playQuality == ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-changes:
			printSnapshot(cmd, s)
			if !qualitySet && len(s.Qualities) > 1 {
				qualitySet = true
				if err := sess.SetQuality(playQuality); err != nil {
					fmt.Fprintf(out, "quality %s: %v\n", playQuality, err)
				}
			}
			switch s.State {
			case player.StateEnded:
				return nil
			case player.StateFailed:
				return fmt.Errorf("playback failed: %s", s.Error)
			}
		}
	}
}

func printSnapshot(cmd *cobra.Command, s player.Snapshot) {
	line := fmt.Sprintf("%-10s strategy=%s proxied=%t url=%s", s.State, s.Strategy, s.Proxied, s.URL)
	if len(s.Qualities) > 0 {
		line += fmt.Sprintf(" qualities=%s quality=%s", strings.Join(s.Qualities, ","), s.Quality)
	}
	if s.ShowPlayOverlay {
		line += " overlay"
	}
	if s.Error != "" {
		line += fmt.Sprintf(" error=%q", s.Error)
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

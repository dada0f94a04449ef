package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	transporthttp "github.com/Mangamer21/Aquadroom-portofoon/internal/transport/http"
)

var (
	statsURL     string
	statsTimeout time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows statistics of a running relay",
	RunE:  runStats,
}

func init() {
	RootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&statsURL, "url", "u", "http://localhost:8080", "base URL of the relay")
	statsCmd.Flags().DurationVar(&statsTimeout, "timeout", 5*time.Second, "request timeout")
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), statsTimeout)
	defer cancel()

	base := strings.TrimRight(statsURL, "/")

	var stats transporthttp.StatsResponse
	if err := getJSON(ctx, base+"/api/stats", &stats); err != nil {
		return err
	}
	var channels transporthttp.ChannelsResponse
	if err := getJSON(ctx, base+"/api/channels", &channels); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started:      %s (up %s)\n", stats.StartedAt, time.Duration(stats.UptimeSeconds)*time.Second)
	fmt.Fprintf(out, "Clients:      %d (%d named)\n", stats.Clients, stats.Named)
	fmt.Fprintf(out, "Transmitting: %d\n", stats.Transmitting)
	if stats.MaxClientsAt != "" {
		fmt.Fprintf(out, "Peak:         %d at %s\n", stats.MaxClients, stats.MaxClientsAt)
	} else {
		fmt.Fprintf(out, "Peak:         %d\n", stats.MaxClients)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tNAME\tMEMBERS")
	for _, ch := range channels.Channels {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", ch.ID, ch.Name, ch.Members)
	}
	return tw.Flush()
}

func getJSON(ctx context.Context, url string, v any) error {
	req, err := stdhttp.NewRequestWithContext(ctx, stdhttp.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := stdhttp.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != stdhttp.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("query %s: %s: %s", url, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

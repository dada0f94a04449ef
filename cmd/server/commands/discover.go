package commands

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/discovery"
)

var (
	discoverService string
	discoverDomain  string
	discoverTimeout time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Lists relays announced on the local network",
	RunE:  runDiscover,
}

func init() {
	RootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVar(&discoverService, "service", discovery.DefaultService, "mDNS service type")
	discoverCmd.Flags().StringVar(&discoverDomain, "domain", discovery.DefaultDomain, "mDNS domain")
	discoverCmd.Flags().DurationVarP(&discoverTimeout, "timeout", "t", 3*time.Second, "how long to listen for announcements")
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	resolver, err := discovery.NewResolver(nil, discoverService, discoverDomain)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
	defer cancel()

	relays, err := resolver.Browse(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(relays) == 0 {
		fmt.Fprintln(out, "no relays found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tURL\tPROTOCOL\tADDRESSES")
	for _, r := range relays {
		addrs := make([]string, 0, len(r.IPs))
		for _, ip := range r.IPs {
			addrs = append(addrs, ip.String())
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Instance, r.URL(), r.Protocol, strings.Join(addrs, ","))
	}
	return tw.Flush()
}

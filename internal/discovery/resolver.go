package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// DefaultBrowseTimeout bounds Browse when ctx carries no deadline.
const DefaultBrowseTimeout = 3 * time.Second

// MDNSResolver is the interface for mDNS service resolution.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// Relay is one relay found on the network.
type Relay struct {
	Instance string
	Host     string
	Port     int
	Path     string
	Protocol int
	IPs      []net.IP
}

// URL builds the websocket URL of the relay, preferring IPv4.
func (r Relay) URL() string {
	host := strings.TrimSuffix(r.Host, ".")
	for _, ip := range r.IPs {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	path := r.Path
	if path == "" {
		path = "/ws"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, strconv.Itoa(r.Port)), path)
}

// Resolver finds relays advertised by an Advertiser.
type Resolver struct {
	resolver MDNSResolver
	service  string
	domain   string
}

// NewResolver creates a Resolver. A nil mdns selects grandcat/zeroconf.
func NewResolver(mdns MDNSResolver, service, domain string) (*Resolver, error) {
	if mdns == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, fmt.Errorf("discovery: new resolver: %w", err)
		}
		mdns = zr
	}
	if service == "" {
		service = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}
	return &Resolver{resolver: mdns, service: service, domain: domain}, nil
}

// Browse collects relays until ctx is done or the default timeout expires.
func (r *Resolver) Browse(ctx context.Context) ([]Relay, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultBrowseTimeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.resolver.Browse(ctx, r.service, r.domain, entries)
	}()

	var relays []Relay
	seen := make(map[string]struct{})
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				// zeroconf closes the channel when ctx ends.
				entries = nil
				continue
			}
			if entry == nil {
				continue
			}
			if _, dup := seen[entry.Instance]; dup {
				continue
			}
			seen[entry.Instance] = struct{}{}
			relays = append(relays, entryToRelay(entry))
		case <-ctx.Done():
			if err := <-errCh; err != nil && ctx.Err() == nil {
				return relays, err
			}
			return relays, nil
		}
	}
}

func entryToRelay(entry *zeroconf.ServiceEntry) Relay {
	relay := Relay{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
	}
	relay.IPs = append(relay.IPs, entry.AddrIPv4...)
	relay.IPs = append(relay.IPs, entry.AddrIPv6...)
	for _, kv := range entry.Text {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch key {
		case txtPath:
			relay.Path = value
		case txtProtocol:
			relay.Protocol, _ = strconv.Atoi(value)
		}
	}
	return relay
}

package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
)

const (
	// DefaultService is the DNS-SD service type of the relay.
	DefaultService = "_portofoon._tcp"
	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
	// DefaultInstance is used when no instance name is configured.
	DefaultInstance = "portofoon"

	txtPath     = "path"
	txtProtocol = "proto"
)

// MDNSServer is the interface for mDNS service registration.
type MDNSServer interface {
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	Instance string
	Service  string
	Domain   string
	// Port is the TCP port the relay listens on.
	Port int
	// Path is the websocket endpoint, published in TXT.
	Path     string
	Protocol int
	// Interfaces to advertise on; nil means all.
	Interfaces []net.Interface
	// ServerFactory defaults to grandcat/zeroconf.
	ServerFactory MDNSServerFactory
	Logger        *zerolog.Logger
}

// Advertiser publishes the relay on the local network so handsets can find it.
type Advertiser struct {
	config  AdvertiserConfig
	factory MDNSServerFactory
	log     *zerolog.Logger

	mu     sync.Mutex
	server MDNSServer
	closed bool
}

// NewAdvertiser validates config and fills in defaults.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPort, config.Port)
	}
	if config.Instance == "" {
		config.Instance = DefaultInstance
	}
	if config.Service == "" {
		config.Service = DefaultService
	}
	if config.Domain == "" {
		config.Domain = DefaultDomain
	}
	if config.Path == "" {
		config.Path = "/ws"
	}

	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}
	logger := config.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Advertiser{config: config, factory: factory, log: logger}, nil
}

// TXT returns the TXT records published with the service.
func (a *Advertiser) TXT() []string {
	return []string{
		txtPath + "=" + a.config.Path,
		txtProtocol + "=" + strconv.Itoa(a.config.Protocol),
	}
}

// Start registers the service.
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.server != nil {
		return ErrAlreadyStarted
	}

	server, err := a.factory.Register(
		a.config.Instance,
		a.config.Service,
		a.config.Domain,
		a.config.Port,
		a.TXT(),
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("discovery: register %s: %w", a.config.Service, err)
	}
	a.server = server

	a.log.Info().
		Str("instance", a.config.Instance).
		Str("service", a.config.Service).
		Int("port", a.config.Port).
		Msg("advertising relay")
	return nil
}

// Close withdraws the advertisement. It is safe to call more than once.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.log.Info().Msg("advertisement withdrawn")
	}
	return nil
}

// PortFromAddr extracts the numeric port from a listen address like ":8080".
func PortFromAddr(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("discovery: parse addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, portStr)
	}
	return port, nil
}

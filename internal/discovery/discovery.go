// ABOUTME: Advertises the bridge on the local network over mDNS.
// ABOUTME: Lets the mobile app find the server without typing an address.

package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
)

const serviceType = "_handoff-bridge._tcp"

// Advertiser publishes the HTTP listen port as an mDNS service record.
type Advertiser struct {
	server *zeroconf.Server
	logger *slog.Logger
}

// Start registers the service record. instance is the human-readable name
// shown in the mobile app's server picker; httpAddr is the bound listen
// address (host:port).
func Start(instance, httpAddr, version string, logger *slog.Logger) (*Advertiser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "discovery")

	port, err := portFromAddr(httpAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving advertised port: %w", err)
	}

	txt := []string{"path=/ws/device"}
	if version != "" {
		txt = append(txt, fmt.Sprintf("version=%s", version))
	}

	server, err := zeroconf.Register(instance, serviceType, "local.", port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("registering mdns service: %w", err)
	}

	logger.Info("advertising on local network", "instance", instance, "service", serviceType, "port", port)
	return &Advertiser{server: server, logger: logger}, nil
}

// Stop withdraws the service record.
func (a *Advertiser) Stop() {
	a.server.Shutdown()
	a.logger.Info("mdns advertisement withdrawn")
}

func portFromAddr(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}
	if port <= 0 {
		return 0, fmt.Errorf("invalid port %q", portStr)
	}
	return port, nil
}

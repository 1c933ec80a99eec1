// Package announce publishes the bridge on the local network via mDNS so
// Hue-speaking clients can find it.
package announce

import (
	"fmt"
	"log/slog"

	"github.com/grandcat/zeroconf"
)

// Announcer holds a registered mDNS service until Shutdown.
type Announcer struct {
	logger *slog.Logger
	server *zeroconf.Server
}

// Start registers a _hue._tcp service on the given port. The instance name
// and bridge id come from the daemon configuration.
func Start(logger *slog.Logger, instance, bridgeID string, port int, version string) (*Announcer, error) {
	txt := []string{
		"bridgeid=" + bridgeID,
		"modelid=BSB002",
		"version=" + version,
	}
	server, err := zeroconf.Register(instance, "_hue._tcp", "local.", port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}

	logger.Info("announce: mdns service registered",
		"instance", instance, "service", "_hue._tcp", "port", port)
	return &Announcer{logger: logger, server: server}, nil
}

// Shutdown withdraws the service.
func (a *Announcer) Shutdown() {
	a.server.Shutdown()
	a.logger.Info("announce: mdns service withdrawn")
}

package infrastructure

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
	"github.com/yourusername/chapterdl-go/pkg/observable"
)

// InterfaceNetworkState classifies connectivity from the host's network
// interfaces by name prefix
type InterfaceNetworkState struct {
	config     domain.NetworkConfig
	logger     *zap.Logger
	connection *observable.Value[domain.ConnectionType]
	interfaces func() (net.InterfaceStatList, error)
}

// NewInterfaceNetworkState creates a provider and takes a first reading
func NewInterfaceNetworkState(config domain.NetworkConfig, logger *zap.Logger) *InterfaceNetworkState {
	s := &InterfaceNetworkState{
		config:     config,
		logger:     logger,
		connection: observable.NewValue(domain.ConnectionNone),
		interfaces: net.Interfaces,
	}
	s.Refresh()
	return s
}

// Connection publishes every change of the connection type
func (s *InterfaceNetworkState) Connection() *observable.Value[domain.ConnectionType] {
	return s.connection
}

// ConnectionType returns the last classified connection
func (s *InterfaceNetworkState) ConnectionType() domain.ConnectionType {
	return s.connection.Get()
}

// ShouldAllowDownload applies the download policy to the current connection
func (s *InterfaceNetworkState) ShouldAllowDownload(wifiOnly bool) bool {
	return domain.ShouldAllowDownload(s.ConnectionType(), wifiOnly)
}

// Refresh reads the interfaces and updates the connection type
func (s *InterfaceNetworkState) Refresh() domain.ConnectionType {
	interfaces, err := s.interfaces()
	if err != nil {
		s.logger.Warn("Failed to read network interfaces", zap.Error(err))
		return s.connection.Get()
	}

	current := s.classify(interfaces)
	if previous := s.connection.Get(); previous != current {
		s.connection.Set(current)
		s.logger.Info("Network changed",
			zap.Stringer("from", previous),
			zap.Stringer("to", current))
	}
	return current
}

// Start polls the interfaces until ctx is done
func (s *InterfaceNetworkState) Start(ctx context.Context) error {
	interval := s.config.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Refresh()
		}
	}
}

// classify prefers wifi, then any other active link, then mobile
func (s *InterfaceNetworkState) classify(interfaces net.InterfaceStatList) domain.ConnectionType {
	var wifi, mobile, other bool
	for _, iface := range interfaces {
		if !isActive(iface) {
			continue
		}
		name := strings.ToLower(iface.Name)
		switch {
		case hasAnyPrefix(name, s.config.WifiInterfaces):
			wifi = true
		case hasAnyPrefix(name, s.config.MobileInterfaces):
			mobile = true
		default:
			other = true
		}
	}

	switch {
	case wifi:
		return domain.ConnectionWifi
	case other:
		return domain.ConnectionOther
	case mobile:
		return domain.ConnectionMobile
	default:
		return domain.ConnectionNone
	}
}

func isActive(iface net.InterfaceStat) bool {
	up := false
	for _, flag := range iface.Flags {
		switch strings.ToLower(flag) {
		case "loopback":
			return false
		case "up":
			up = true
		}
	}
	return up && len(iface.Addrs) > 0
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(name, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

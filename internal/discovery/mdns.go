// ABOUTME: mDNS advertisement of the remote control API
// ABOUTME: Announces _resonate-radio._tcp and browses for other players
package discovery

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServiceType is the DNS-SD service type of the remote API
const ServiceType = "_resonate-radio._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Version     string
	Logger      *zerolog.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config Config
	logger zerolog.Logger
	server *mdns.Server
}

// Instance describes a player found on the network
type Instance struct {
	Name string
	Host string
	Port int
	Info map[string]string
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	logger := log.Logger.With().Str("component", "discovery").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}
	return &Manager{config: config, logger: logger}
}

// Advertise announces the remote API until Stop is called
func (m *Manager) Advertise() error {
	if m.server != nil {
		return fmt.Errorf("already advertising")
	}

	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	m.server = server

	m.logger.Info().
		Str("name", m.config.ServiceName).
		Int("port", m.config.Port).
		Str("type", ServiceType).
		Msg("Advertising mDNS service")
	return nil
}

// Stop withdraws the advertisement
func (m *Manager) Stop() error {
	if m.server == nil {
		return nil
	}
	err := m.server.Shutdown()
	m.server = nil
	return err
}

// Browse collects players answering within timeout
func Browse(timeout time.Duration) ([]Instance, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	found := make(chan []Instance, 1)

	go func() {
		var instances []Instance
		for entry := range entries {
			instances = append(instances, instanceFromEntry(entry))
		}
		found <- instances
	}()

	params := &mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	}
	err := mdns.Query(params)
	close(entries)
	instances := <-found

	if err != nil {
		return instances, fmt.Errorf("mdns query failed: %w", err)
	}
	return instances, nil
}

func instanceFromEntry(entry *mdns.ServiceEntry) Instance {
	inst := Instance{
		Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
		Port: entry.Port,
		Info: make(map[string]string),
	}
	if entry.AddrV4 != nil {
		inst.Host = entry.AddrV4.String()
	} else {
		inst.Host = entry.Host
	}
	for _, field := range entry.InfoFields {
		key, value, _ := strings.Cut(field, "=")
		inst.Info[key] = value
	}
	return inst
}

func txtRecords(config Config) []string {
	txt := []string{"path=/api"}
	if config.Version != "" {
		txt = append(txt, "version="+config.Version)
	}
	return txt
}

// getLocalIPs returns non-loopback IPv4 addresses of interfaces that are up
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}

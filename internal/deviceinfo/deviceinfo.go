// Package deviceinfo computes the identity the proxy reports to API
// clients: names, version strings, feature flags, and the adapter MAC.
package deviceinfo

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Feature bits advertised in DeviceInfoResponse.
const (
	FeaturePassiveScan       uint32 = 1
	FeatureActiveConnections uint32 = 2
	FeatureRemoteCaching     uint32 = 4
	FeaturePairing           uint32 = 8
	FeatureCacheClearing     uint32 = 16
	FeatureRawAdvertisements uint32 = 32
	FeatureStateAndMode      uint32 = 64
)

// Version string reported as esphome_version so clients apply current
// protocol behaviour.
const ESPHomeVersion = "2024.12.0"

const macProbeTimeout = 5 * time.Second

// AdapterAddresser is the slice of the backend the provider needs.
type AdapterAddresser interface {
	AdapterAddress() (string, error)
}

// Identity is the resolved device identity.
type Identity struct {
	Name            string
	FriendlyName    string
	MacAddress      string
	EsphomeVersion  string
	CompilationTime string
	Model           string
	Manufacturer    string
	ProjectName     string
	ProjectVersion  string
	FeatureFlags    uint32
	UsesPassword    bool
}

// Provider resolves the identity once and caches it. The MAC probe may shell
// out, so resolution is deferred until the first DeviceInfo request.
type Provider struct {
	name              string
	friendlyName      string
	usesPassword      bool
	activeConnections bool
	startedAt         time.Time
	backend           AdapterAddresser
	logger            *logrus.Logger

	projectName    string
	projectVersion string

	mu  sync.Mutex
	mac string
}

func NewProvider(name, friendlyName string, usesPassword, activeConnections bool, backend AdapterAddresser, logger *logrus.Logger) *Provider {
	return &Provider{
		name:              name,
		friendlyName:      friendlyName,
		usesPassword:      usesPassword,
		activeConnections: activeConnections,
		startedAt:         time.Now(),
		backend:           backend,
		logger:            logger,
		projectName:       "srg.bleproxy",
	}
}

// SetProject overrides the project identity reported to clients, typically
// with the build version of the hosting binary.
func (p *Provider) SetProject(name, version string) {
	p.projectName = name
	p.projectVersion = version
}

// FeatureFlags returns the advertised capability bitmap. Scanning bits are
// always present; connection-oriented bits only when active connections are
// enabled.
func (p *Provider) FeatureFlags() uint32 {
	flags := FeaturePassiveScan | FeatureRawAdvertisements | FeatureStateAndMode
	if p.activeConnections {
		flags |= FeatureActiveConnections | FeatureRemoteCaching | FeaturePairing | FeatureCacheClearing
	}
	return flags
}

// Identity resolves the full identity. The first call probes the adapter
// MAC; the result is cached for the process lifetime.
func (p *Provider) Identity(ctx context.Context) (*Identity, error) {
	mac, err := p.macAddress(ctx)
	if err != nil {
		return nil, err
	}

	return &Identity{
		Name:            p.name,
		FriendlyName:    p.friendlyName,
		MacAddress:      mac,
		EsphomeVersion:  ESPHomeVersion,
		CompilationTime: p.startedAt.Format("Jan _2 2006, 15:04:05"),
		Model:           "Host",
		Manufacturer:    "bleproxy",
		ProjectName:     p.projectName,
		ProjectVersion:  p.projectVersion,
		FeatureFlags:    p.FeatureFlags(),
		UsesPassword:    p.usesPassword,
	}, nil
}

// macAddress discovers the adapter MAC. Fabricating one is not allowed: if
// neither the backend nor the platform tooling reports it, the daemon must
// not serve DeviceInfo.
func (p *Provider) macAddress(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mac != "" {
		return p.mac, nil
	}

	var attempts []string

	if p.backend != nil {
		mac, err := p.backend.AdapterAddress()
		if err == nil && mac != "" {
			p.mac = strings.ToUpper(mac)
			p.logger.WithField("mac", p.mac).Debug("adapter MAC from backend")
			return p.mac, nil
		}
		attempts = append(attempts, fmt.Sprintf("backend adapter query: %v", err))
	} else {
		attempts = append(attempts, "backend adapter query: no backend")
	}

	mac, err := hciconfigAddress(ctx)
	if err == nil {
		p.mac = mac
		p.logger.WithField("mac", p.mac).Debug("adapter MAC from hciconfig")
		return p.mac, nil
	}
	attempts = append(attempts, fmt.Sprintf("hciconfig: %v", err))

	return "", &MacDiscoveryError{Attempts: attempts}
}

// MacDiscoveryError lists every probe method that failed.
type MacDiscoveryError struct {
	Attempts []string
}

func (e *MacDiscoveryError) Error() string {
	return "unable to discover BLE adapter MAC address: " + strings.Join(e.Attempts, "; ")
}

var hciAddressPattern = regexp.MustCompile(`BD Address:\s*([0-9A-Fa-f:]{17})`)

// hciconfigCommand is swapped in tests.
var hciconfigCommand = func(ctx context.Context) ([]byte, error) {
	return exec.CommandContext(ctx, "hciconfig", "hci0").Output()
}

func hciconfigAddress(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, macProbeTimeout)
	defer cancel()

	out, err := hciconfigCommand(ctx)
	if err != nil {
		return "", err
	}

	m := hciAddressPattern.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("no BD Address in hciconfig output")
	}
	return strings.ToUpper(string(m[1])), nil
}

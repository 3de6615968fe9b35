package config

import (
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// DomainsConfig holds a map of per-domain-id overrides, keyed by the
// string form of the DDS domain id (YAML maps need string keys).
type DomainsConfig struct {
	Domains map[string]Config `yaml:"domains"`
}

// Manager resolves the effective config for a given DDS domain id,
// layering that domain's override file on top of the master config —
// the same two-file master+override split the teacher uses for
// multi-tenant config, applied here to multi-domain-participant config.
type Manager struct {
	globalConfig  *Config
	domainConfigs map[int]Config
	mu            sync.RWMutex
}

// NewManager loads both the master config and the per-domain overrides.
func NewManager(masterPath, domainsPath string) (*Manager, error) {
	master, err := LoadConfig(masterPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(domainsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{globalConfig: master, domainConfigs: make(map[int]Config)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var dc DomainsConfig
	if err := yaml.NewDecoder(f).Decode(&dc); err != nil {
		return nil, err
	}

	domains := make(map[int]Config, len(dc.Domains))
	for key, cfg := range dc.Domains {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		domains[id] = cfg
	}

	return &Manager{
		globalConfig:  master,
		domainConfigs: domains,
	}, nil
}

// Get returns the effective config for a domain id, merging that
// domain's overrides (if any) on top of the global config.
func (m *Manager) Get(domainID int) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	effective := *m.globalConfig

	override, ok := m.domainConfigs[domainID]
	if !ok {
		return &effective
	}

	if override.DDS.TransportSelector != "" {
		effective.DDS.TransportSelector = override.DDS.TransportSelector
	}
	if override.DDS.TCPReadTimeoutMS != 0 {
		effective.DDS.TCPReadTimeoutMS = override.DDS.TCPReadTimeoutMS
	}
	if override.DDS.TCPWriteTimeoutMS != 0 {
		effective.DDS.TCPWriteTimeoutMS = override.DDS.TCPWriteTimeoutMS
	}
	if override.DDS.MonitorPort != 0 {
		effective.DDS.MonitorPort = override.DDS.MonitorPort
	}
	if override.DDS.NRecvThreads != 0 {
		effective.DDS.NRecvThreads = override.DDS.NRecvThreads
	}
	if override.DDS.RecvThreadMode != "" {
		effective.DDS.RecvThreadMode = override.DDS.RecvThreadMode
	}
	if override.DDS.LeaseDurationMS != 0 {
		effective.DDS.LeaseDurationMS = override.DDS.LeaseDurationMS
	}
	if override.DDS.SPDPIntervalMS != 0 {
		effective.DDS.SPDPIntervalMS = override.DDS.SPDPIntervalMS
	}
	if override.DDS.ParticipantIndex != 0 {
		effective.DDS.ParticipantIndex = override.DDS.ParticipantIndex
	}
	effective.DDS.DomainID = domainID

	return &effective
}

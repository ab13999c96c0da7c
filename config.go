package lb

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	validator "github.com/asaskevich/govalidator"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

var ErrNoConfig = errors.New("no config found")

type RawEndpoint struct {
	Addr string `yaml:"addr"`
	Port int    `yaml:"port"`
}

type RawPeers struct {
	NodeName string   `yaml:"nodeName"`
	BindAddr string   `yaml:"bindAddr"`
	BindPort int      `yaml:"bindPort"`
	Join     []string `yaml:"join"`
}

type RawConfig struct {
	Interface      string        `yaml:"interface"`
	LocalAddr      string        `yaml:"localAddr"`
	Vip            *RawEndpoint  `yaml:"vip"`
	Backends       []RawEndpoint `yaml:"backends"`
	BackendCount   *int          `yaml:"backendCount"`
	Algorithm      string        `yaml:"algorithm"`
	EvictionMode   string        `yaml:"evictionMode"`
	MaxConnections int           `yaml:"maxConnections"`
	MaxTCPLength   int           `yaml:"maxTcpLength"`
	EventQueueSize int           `yaml:"eventQueueSize"`
	RouteCacheTTL  string        `yaml:"routeCacheTTL"`
	MetricsAddr    string        `yaml:"metricsAddr"`
	LogLevel       string        `yaml:"logLevel"`
	Workers        int           `yaml:"workers"`
	Peers          *RawPeers     `yaml:"peers"`
}

// PeersConfig configures the cluster used to share eviction events.
type PeersConfig struct {
	NodeName string
	BindAddr string
	BindPort int
	Join     []string
}

type Config struct {
	Interface      string
	LocalAddr      Addr4
	Vip            *Vip
	Backends       []Backend
	BackendCount   uint32
	Algorithm      Algorithm
	EvictionMode   EvictionMode
	MaxConnections int
	MaxTCPLength   int
	EventQueueSize int
	RouteCacheTTL  time.Duration
	MetricsAddr    string
	LogLevel       log.Level
	Workers        int
	Peers          *PeersConfig
}

// ParseConfig reads and validates a yaml config file.
func ParseConfig(configFile string) (*Config, error) {
	yamlFile, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
	}
	return ParseConfigBytes(yamlFile)
}

// ParseConfigBytes validates a yaml document into a Config.
func ParseConfigBytes(data []byte) (*Config, error) {
	var rawConf RawConfig
	if err := yaml.UnmarshalStrict(data, &rawConf); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Debugf("raw config: %+v", rawConf)
	return rawConf.Validate()
}

// Validate checks the raw values and fills in defaults.
func (rawConf *RawConfig) Validate() (*Config, error) {
	conf := Config{
		Interface:      rawConf.Interface,
		Algorithm:      ParseAlgorithm(rawConf.Algorithm),
		EvictionMode:   ParseEvictionMode(rawConf.EvictionMode),
		MaxConnections: DefaultMaxConnections,
		MaxTCPLength:   DefaultMaxTCPLength,
		EventQueueSize: DefaultEventQueueSize,
		RouteCacheTTL:  DefaultRouteCacheTTL,
		MetricsAddr:    rawConf.MetricsAddr,
		LogLevel:       log.InfoLevel,
		Workers:        rawConf.Workers,
	}

	if rawConf.Algorithm != "" && !validator.IsIn(rawConf.Algorithm, "hash", "round_robin", "random") {
		log.Warnf("unknown algorithm: %s, using %s", rawConf.Algorithm, conf.Algorithm)
	}
	if rawConf.EvictionMode != "" && !validator.IsIn(rawConf.EvictionMode, "local", "notify") {
		return nil, fmt.Errorf("invalid evictionMode: %s", rawConf.EvictionMode)
	}

	if !validator.IsIPv4(rawConf.LocalAddr) {
		return nil, fmt.Errorf("invalid localAddr: %q", rawConf.LocalAddr)
	}
	conf.LocalAddr, _ = ParseAddr4(rawConf.LocalAddr)

	if rawConf.Vip != nil {
		ep, err := rawConf.Vip.endpoint()
		if err != nil {
			return nil, fmt.Errorf("invalid vip: %w", err)
		}
		vip := Vip(ep)
		conf.Vip = &vip
	}

	seen := make(map[Backend]bool)
	for i, raw := range rawConf.Backends {
		ep, err := raw.endpoint()
		if err != nil {
			return nil, fmt.Errorf("invalid backend %d: %w", i, err)
		}
		backend := Backend(ep)
		if seen[backend] {
			log.Warnf("duplicate backend: %s", backend)
		}
		seen[backend] = true
		conf.Backends = append(conf.Backends, backend)
	}
	if len(conf.Backends) > MaxBackends {
		return nil, fmt.Errorf("%d backends configured, at most %d allowed", len(conf.Backends), MaxBackends)
	}

	conf.BackendCount = uint32(len(conf.Backends))
	if rawConf.BackendCount != nil {
		if *rawConf.BackendCount < 0 || *rawConf.BackendCount > MaxBackends {
			return nil, fmt.Errorf("invalid backendCount: %d", *rawConf.BackendCount)
		}
		conf.BackendCount = uint32(*rawConf.BackendCount)
	}

	if rawConf.MaxConnections < 0 || rawConf.MaxTCPLength < 0 || rawConf.EventQueueSize < 0 {
		return nil, errors.New("maxConnections, maxTcpLength and eventQueueSize must not be negative")
	}
	if rawConf.MaxConnections > 0 {
		conf.MaxConnections = rawConf.MaxConnections
	}
	if rawConf.MaxTCPLength > 0 {
		conf.MaxTCPLength = rawConf.MaxTCPLength
	}
	if rawConf.EventQueueSize > 0 {
		conf.EventQueueSize = rawConf.EventQueueSize
	}

	if rawConf.RouteCacheTTL != "" {
		ttl, err := time.ParseDuration(rawConf.RouteCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid routeCacheTTL: %w", err)
		}
		conf.RouteCacheTTL = ttl
	}

	if rawConf.LogLevel != "" {
		level, err := log.ParseLevel(rawConf.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid logLevel: %w", err)
		}
		conf.LogLevel = level
	}

	if rawConf.Peers != nil {
		peers, err := rawConf.Peers.validate()
		if err != nil {
			return nil, fmt.Errorf("invalid peers: %w", err)
		}
		conf.Peers = peers
	}

	log.Debugf("%+v", conf)
	return &conf, nil
}

func (raw RawEndpoint) endpoint() (Endpoint, error) {
	if !validator.IsIPv4(raw.Addr) {
		return Endpoint{}, fmt.Errorf("address %q is not ipv4", raw.Addr)
	}
	if !validator.IsPort(strconv.Itoa(raw.Port)) {
		return Endpoint{}, fmt.Errorf("port %d out of range", raw.Port)
	}
	addr, err := ParseAddr4(raw.Addr)
	if err != nil {
		return Endpoint{}, err
	}
	return Endpoint{Addr: addr, Port: uint16(raw.Port)}, nil
}

func (raw RawPeers) validate() (*PeersConfig, error) {
	peers := &PeersConfig{
		NodeName: raw.NodeName,
		BindAddr: raw.BindAddr,
		BindPort: raw.BindPort,
	}
	if peers.NodeName == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("no nodeName and no hostname: %w", err)
		}
		peers.NodeName = host
	}
	if peers.BindAddr == "" {
		peers.BindAddr = "0.0.0.0"
	}
	if !validator.IsIP(peers.BindAddr) {
		return nil, fmt.Errorf("bindAddr %q is not an ip", peers.BindAddr)
	}
	if peers.BindPort == 0 {
		peers.BindPort = 7946
	}
	if !validator.IsPort(strconv.Itoa(peers.BindPort)) {
		return nil, fmt.Errorf("bindPort %d out of range", peers.BindPort)
	}
	for _, member := range raw.Join {
		host, _, err := net.SplitHostPort(member)
		if err != nil {
			host = member
		}
		if !validator.IsHost(host) {
			log.Warnf("peer %s does not look like a host", member)
		}
		peers.Join = append(peers.Join, member)
	}
	return peers, nil
}

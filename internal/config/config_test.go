package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rdmsession/internal/auth"
	"github.com/danmuck/rdmsession/internal/testutil/testlog"
	"github.com/danmuck/rdmsession/internal/transport"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplatesLoadAndValidate(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	consumerPath := filepath.Join(dir, "consumer.toml")
	if err := WriteTemplate(consumerPath, "consumer", false); err != nil {
		t.Fatalf("write consumer template: %v", err)
	}
	ccfg, err := LoadConsumerConfig(consumerPath)
	if err != nil {
		t.Fatalf("load consumer template: %v", err)
	}
	if ccfg.Service != "DIRECT_FEED" || len(ccfg.Items) != 2 || !ccfg.DownloadDictionary {
		t.Fatalf("unexpected consumer config: %+v", ccfg)
	}

	providerPath := filepath.Join(dir, "provider.toml")
	if err := WriteTemplate(providerPath, "provider", false); err != nil {
		t.Fatalf("write provider template: %v", err)
	}
	pcfg, err := LoadProviderConfig(providerPath)
	if err != nil {
		t.Fatalf("load provider template: %v", err)
	}
	if len(pcfg.Items) != 2 || len(pcfg.SymbolLists) != 1 {
		t.Fatalf("unexpected provider config: %+v", pcfg)
	}
}

func TestWriteTemplateRefusesOverwrite(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "name = \"x\"\n")
	if err := WriteTemplate(path, "consumer", false); err == nil {
		t.Fatalf("expected overwrite refusal")
	}
	if err := WriteTemplate(path, "consumer", true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
	if _, err := Template("mirror"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

func TestLoadConsumerConfigKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "user = \"alice\"\n")
	cfg, err := LoadConsumerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address != DefaultConsumerConfig().Address {
		t.Fatalf("address default lost: %q", cfg.Address)
	}
	opts := cfg.TransportOptions()
	if opts.PingTimeout != 60*time.Second {
		t.Fatalf("unexpected ping timeout: %v", opts.PingTimeout)
	}
	if opts.SubProtocol != transport.SubProtocolBinary || opts.Converter != nil {
		t.Fatalf("binary sessions need no converter")
	}
	if got := cfg.Consumer().Login.UserName; got != "alice" {
		t.Fatalf("unexpected user: %q", got)
	}
}

func TestConfigValidationErrors(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name string
		body string
		load func(string) error
		want string
	}{
		{
			name: "consumer without user",
			body: "service = \"X\"\n",
			load: func(p string) error { _, err := LoadConsumerConfig(p); return err },
			want: "missing user",
		},
		{
			name: "consumer bad address",
			body: "user = \"a\"\naddress = \"nohost\"\n",
			load: func(p string) error { _, err := LoadConsumerConfig(p); return err },
			want: "address",
		},
		{
			name: "bad sub protocol",
			body: "user = \"a\"\n[session]\nsub_protocol = \"xml\"\n",
			load: func(p string) error { _, err := LoadConsumerConfig(p); return err },
			want: "sub-protocol",
		},
		{
			name: "bad ping timeout",
			body: "[session]\nping_timeout = \"soon\"\n",
			load: func(p string) error { _, err := LoadProviderConfig(p); return err },
			want: "ping_timeout",
		},
		{
			name: "item field id",
			body: "[[items]]\nname = \"IBM.N\"\nfields = { abc = \"1\" }\n",
			load: func(p string) error { _, err := LoadProviderConfig(p); return err },
			want: "field id",
		},
		{
			name: "duplicate item",
			body: "[[items]]\nname = \"IBM.N\"\n[[items]]\nname = \"IBM.N\"\n",
			load: func(p string) error { _, err := LoadProviderConfig(p); return err },
			want: "duplicate",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.load(writeFile(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestProviderConversion(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultProviderConfig()
	cfg.Users = []string{"alice"}
	cfg.Session.SubProtocol = "json"
	cfg.Items = []ItemConfig{{Name: "IBM.N", Fields: map[string]string{"25": "184.12", "22": "184.10"}}}
	cfg.SymbolLists = []SymbolListConfig{{Name: "0#.DJI", Symbols: []string{"IBM.N"}}}

	pc := cfg.Provider()
	fields := pc.Items["IBM.N"]
	if len(fields) != 2 || fields[0].FID != 22 || fields[1].FID != 25 {
		t.Fatalf("fields not ordered by id: %+v", fields)
	}
	if _, ok := pc.Validator.(auth.UserList); !ok {
		t.Fatalf("expected user list validator, got %T", pc.Validator)
	}
	if len(pc.SymbolLists["0#.DJI"]) != 1 {
		t.Fatalf("symbol list lost: %+v", pc.SymbolLists)
	}
	opts := cfg.TransportOptions()
	if opts.SubProtocol != transport.SubProtocolJSON || opts.Converter == nil {
		t.Fatalf("json provider needs a converter")
	}
	if pc.QoS.Timeliness == 0 {
		t.Fatalf("qos not set")
	}
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "consumer":
		return consumerTemplate, nil
	case "provider":
		return providerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const consumerTemplate = `name = "consumerctl"
address = "127.0.0.1:14002"
backup_address = ""
admin_addr = "127.0.0.1:7020"
log_level = "info"

user = "rdm-user"
application_id = "256"
application_name = "consumerctl"
position = "127.0.0.1/net"
rtt = true

service = "DIRECT_FEED"
items = ["IBM.N", "TRI.N"]
symbol_list = "0#.DJI"
download_dictionary = true

[session]
ping_timeout = "60s"
sub_protocol = "binary"
`

const providerTemplate = `name = "providerctl"
listen = ":14002"
admin_addr = "127.0.0.1:7021"
log_level = "info"

service_id = 1
service_name = "DIRECT_FEED"
vendor = "rdmsession"
rtt = true

max_login_streams = 1
max_dictionary_requests = 2
max_items = 100
dictionary_part_bytes = 4096

users = []

[session]
ping_timeout = "60s"
sub_protocol = "binary"

[[items]]
name = "IBM.N"
fields = { 22 = "184.10", 25 = "184.12", 15 = "840" }

[[items]]
name = "TRI.N"
fields = { 22 = "98.50", 25 = "98.55", 15 = "840" }

[[symbol_lists]]
name = "0#.DJI"
symbols = ["IBM.N", "TRI.N"]
`

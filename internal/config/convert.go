package config

import (
	"sort"
	"strings"

	"github.com/danmuck/rdmsession/internal/auth"
	"github.com/danmuck/rdmsession/internal/consumer"
	"github.com/danmuck/rdmsession/internal/protocol/jsonconv"
	"github.com/danmuck/rdmsession/internal/provider"
	"github.com/danmuck/rdmsession/internal/rdm"
	"github.com/danmuck/rdmsession/internal/transport"
)

// TransportOptions builds session options. The config is assumed valid.
func TransportOptions(address, backup string, cfg SessionConfig) transport.Options {
	opts := transport.Options{
		Address:       strings.TrimSpace(address),
		BackupAddress: strings.TrimSpace(backup),
		MaxMsgSize:    cfg.MaxMsgSize,
	}
	opts.PingTimeout, _ = parseDuration(cfg.PingTimeout)
	opts.PingInterval, _ = parseDuration(cfg.PingInterval)
	opts.SubProtocol, _ = transport.ParseSubProtocol(cfg.SubProtocol)
	if opts.SubProtocol == transport.SubProtocolJSON {
		opts.Converter = jsonconv.Converter{}
	}
	return opts.WithDefaults()
}

func (c ConsumerConfig) TransportOptions() transport.Options {
	return TransportOptions(c.Address, c.BackupAddress, c.Session)
}

func (c ConsumerConfig) Consumer() consumer.Config {
	return consumer.Config{
		Login: consumer.LoginConfig{
			UserName:        strings.TrimSpace(c.User),
			ApplicationID:   c.ApplicationID,
			ApplicationName: c.ApplicationName,
			Position:        c.Position,
			Role:            rdm.RoleConsumer,
			SupportRTT:      c.RTT,
		},
		ServiceName:        c.Service,
		Items:              append([]string(nil), c.Items...),
		SymbolList:         c.SymbolList,
		DownloadDictionary: c.DownloadDictionary,
	}
}

// TransportOptions for a provider carry no address; listeners take it
// separately.
func (c ProviderConfig) TransportOptions() transport.Options {
	opts := TransportOptions("", "", c.Session)
	opts.Converter = jsonconv.Converter{}
	return opts
}

func (c ProviderConfig) Provider() provider.Config {
	out := provider.Config{
		ServiceID:             c.ServiceID,
		ServiceName:           c.ServiceName,
		Vendor:                c.Vendor,
		QoS:                   rdm.QoS{Timeliness: rdm.TimelinessRealtime, Rate: rdm.RateTickByTick},
		MaxLoginStreams:       c.MaxLoginStreams,
		MaxDictionaryRequests: c.MaxDictionaryRequests,
		MaxItems:              c.MaxItems,
		PartBytes:             c.DictionaryPartBytes,
		SupportRTT:            c.RTT,
		Items:                 make(map[string][]rdm.MarketField, len(c.Items)),
		SymbolLists:           make(map[string][]string, len(c.SymbolLists)),
	}
	if len(c.Users) > 0 {
		out.Validator = auth.UserList{Users: c.Users, ApplicationID: c.ApplicationID}
	}
	for _, item := range c.Items {
		out.Items[item.Name] = MarketFields(item.Fields)
	}
	for _, list := range c.SymbolLists {
		out.SymbolLists[list.Name] = append([]string(nil), list.Symbols...)
	}
	return out
}

// MarketFields orders fields by id; keys that are not field ids are skipped.
func MarketFields(fields map[string]string) []rdm.MarketField {
	out := make([]rdm.MarketField, 0, len(fields))
	for key, value := range fields {
		fid, err := parseFID(key)
		if err != nil {
			continue
		}
		out = append(out, rdm.MarketField{FID: fid, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FID < out[j].FID })
	return out
}

package scan

import (
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/internal/media"
)

// Scenario is one way of reaching a media server.
type Scenario struct {
	Name   string
	Policy media.IceGatherPolicy
	// Compatible selects the ICE servers the scenario may use. None are compatible with Host.
	Compatible func(media.IceServerInfo) bool
	// RequiresTLS marks scenarios whose relay transport is TLS, so the server certificate can be inspected.
	RequiresTLS bool
	Disabled    func(opts *configuration.ScanOptions) bool
}

// Scenarios are probed in this order.
var Scenarios = []Scenario{
	{
		Name:       "Host",
		Policy:     media.IceGatherAll,
		Compatible: func(media.IceServerInfo) bool { return false },
		Disabled:   func(opts *configuration.ScanOptions) bool { return opts.NoHost },
	},
	{
		Name:       "STUN",
		Policy:     media.IceGatherNoHost,
		Compatible: func(s media.IceServerInfo) bool { return s.Stun },
		Disabled:   func(opts *configuration.ScanOptions) bool { return opts.NoStun },
	},
	{
		Name:       "TURN/UDP",
		Policy:     media.IceGatherRelay,
		Compatible: func(s media.IceServerInfo) bool { return s.Turn && s.Udp },
		Disabled:   func(opts *configuration.ScanOptions) bool { return opts.NoTurnUdp },
	},
	{
		Name:       "TURN/TCP",
		Policy:     media.IceGatherRelay,
		Compatible: func(s media.IceServerInfo) bool { return s.Turn && s.Tcp && !s.Secure },
		Disabled:   func(opts *configuration.ScanOptions) bool { return opts.NoTurnTcp },
	},
	{
		Name:        "TURNS",
		Policy:      media.IceGatherRelay,
		Compatible:  func(s media.IceServerInfo) bool { return s.Turn && s.Tcp && s.Secure },
		RequiresTLS: true,
		Disabled:    func(opts *configuration.ScanOptions) bool { return opts.NoTurns },
	},
}

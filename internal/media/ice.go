package media

import (
	"github.com/pion/stun/v3"
	"github.com/pkg/errors"
)

// IceServer is a STUN or TURN server offered by the gateway.
type IceServer struct {
	Url      string
	Username string
	Password string
}

// IceServerInfo is the classification of an IceServer url.
type IceServerInfo struct {
	Stun   bool
	Turn   bool
	Secure bool
	Udp    bool
	Tcp    bool
	Host   string
	Port   int
}

// Classify parses the url of the server. A TURN url without an explicit transport is UDP unless it is
// secure, in which case it is TCP.
func (s IceServer) Classify() (IceServerInfo, error) {
	uri, err := stun.ParseURI(s.Url)
	if err != nil {
		return IceServerInfo{}, errors.Wrapf(err, "invalid ICE server url %q", s.Url)
	}
	info := IceServerInfo{Host: uri.Host, Port: uri.Port}
	switch uri.Scheme {
	case stun.SchemeTypeSTUN:
		info.Stun = true
	case stun.SchemeTypeSTUNS:
		info.Stun, info.Secure = true, true
	case stun.SchemeTypeTURN:
		info.Turn = true
	case stun.SchemeTypeTURNS:
		info.Turn, info.Secure = true, true
	default:
		return IceServerInfo{}, errors.Errorf("unsupported ICE server scheme in %q", s.Url)
	}
	switch uri.Proto {
	case stun.ProtoTypeUDP:
		info.Udp = true
	case stun.ProtoTypeTCP:
		info.Tcp = true
	default:
		if info.Secure {
			info.Tcp = true
		} else {
			info.Udp = true
		}
	}
	return info, nil
}

// FilterIceServers keeps the servers for which keep returns true. Servers whose url cannot be parsed
// are dropped.
func FilterIceServers(servers []IceServer, keep func(IceServerInfo) bool) []IceServer {
	var kept []IceServer
	for _, server := range servers {
		info, err := server.Classify()
		if err != nil {
			continue
		}
		if keep(info) {
			kept = append(kept, server)
		}
	}
	return kept
}

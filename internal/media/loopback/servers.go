package loopback

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/pkg/client"
)

// Server is one media server of the simulated cluster.
type Server struct {
	client.MediaServer
	// Unreachable servers never accept a pinned connection; it lands on another server instead.
	Unreachable bool
	// UnregisterOnMismatch removes the server from the table the first time a pinned connection misses it.
	UnregisterOnMismatch bool
}

// SetMediaServers replaces the server table.
func (g *Gateway) SetMediaServers(servers ...*Server) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.servers = servers
	g.nextServer = 0
}

// UpdateMediaServer applies update to the server with the given id, if it exists.
func (g *Gateway) UpdateMediaServer(id string, update func(*Server)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, server := range g.servers {
		if server.Id == id {
			update(server)
		}
	}
}

// RemoveMediaServer unregisters a server.
func (g *Gateway) RemoveMediaServer(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeLocked(id)
}

func (g *Gateway) removeLocked(id string) {
	kept := g.servers[:0]
	for _, server := range g.servers {
		if server.Id != id {
			kept = append(kept, server)
		}
	}
	g.servers = kept
}

// SetCapacityThresholds configures the thresholds served for a deployment.
func (g *Gateway) SetCapacityThresholds(deploymentId string, thresholds *client.CapacityThresholds) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thresholds[deploymentId] = thresholds
}

// MediaServers serves the server table the way the cluster management API does.
func (g *Gateway) MediaServers(ctx context.Context) ([]*client.MediaServer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	snapshots := make([]*client.MediaServer, len(g.servers))
	for i, server := range g.servers {
		snapshot := server.MediaServer
		snapshots[i] = &snapshot
	}
	return snapshots, nil
}

func (g *Gateway) MediaServer(ctx context.Context, id string) (*client.MediaServer, error) {
	servers, err := g.MediaServers(ctx)
	if err != nil {
		return nil, err
	}
	for _, server := range servers {
		if server.Id == id {
			return server, nil
		}
	}
	return nil, nil
}

func (g *Gateway) CapacityThresholds(ctx context.Context, deploymentId string) (*client.CapacityThresholds, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.thresholds[deploymentId], nil
}

// route picks the media server for a new connection. A preferred server is honoured if it is active and
// reachable; otherwise the connection lands on the next usable server.
func (g *Gateway) route(preferred string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	usable := func(s *Server) bool { return s.Active && !s.Draining && !s.Unreachable }
	if preferred != "" {
		for _, server := range g.servers {
			if server.Id != preferred {
				continue
			}
			if usable(server) {
				return server.Id, nil
			}
			if server.UnregisterOnMismatch {
				g.removeLocked(server.Id)
			}
			break
		}
	}
	for i := 0; i < len(g.servers); i++ {
		server := g.servers[(g.nextServer+i)%len(g.servers)]
		if usable(server) && server.Id != preferred {
			g.nextServer = (g.nextServer + i + 1) % len(g.servers)
			return server.Id, nil
		}
	}
	return "", errors.New("no media server available")
}

// certificate returns the certificate presented by host, generating one on first use.
func (g *Gateway) certificate(host string) (*x509.Certificate, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if certificate, ok := g.Certificates[host]; ok {
		return certificate, nil
	}
	now := time.Now()
	certificate, err := SelfSignedCertificate(host, now.Add(-time.Hour), now.Add(g.CertificateLifetime))
	if err != nil {
		return nil, err
	}
	g.Certificates[host] = certificate
	return certificate, nil
}

// SelfSignedCertificate creates a certificate for host valid between notBefore and notAfter.
func SelfSignedCertificate(host string, notBefore, notAfter time.Time) (*x509.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host, Organization: []string{"Loopback"}},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		DNSNames:     []string{host},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	certificate, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return certificate, nil
}

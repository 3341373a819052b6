package scan

import (
	"crypto/sha1"
	"crypto/x509"
	"fmt"

	"github.com/patrickmn/go-cache"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// CertificateRegistry remembers the first certificate presented by each TLS host during a scan.
type CertificateRegistry struct {
	certificates *cache.Cache
}

func NewCertificateRegistry() *CertificateRegistry {
	return &CertificateRegistry{certificates: cache.New(cache.NoExpiration, 0)}
}

// Add records certificate for host. It returns false, and keeps the existing certificate, if host has
// been seen before.
func (r *CertificateRegistry) Add(host string, certificate *x509.Certificate) bool {
	return r.certificates.Add(host, certificate, cache.NoExpiration) == nil
}

func (r *CertificateRegistry) Get(host string) (*x509.Certificate, bool) {
	value, ok := r.certificates.Get(host)
	if !ok {
		return nil, false
	}
	return value.(*x509.Certificate), true
}

// Hosts returns every host seen so far, sorted.
func (r *CertificateRegistry) Hosts() []string {
	hosts := maps.Keys(r.certificates.Items())
	slices.Sort(hosts)
	return hosts
}

// Thumbprint is the uppercase hex SHA-1 of the DER encoding of certificate.
func Thumbprint(certificate *x509.Certificate) string {
	return fmt.Sprintf("%X", sha1.Sum(certificate.Raw))
}

// Package tlsutil serves the shell over HTTPS with a self-signed localhost
// certificate and builds clients that accept it on loopback only.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const certValidity = 365 * 24 * time.Hour

// Environment overrides for NewHTTPClient.
const (
	EnvInsecure      = "FRIEDMAN_TLS_INSECURE"       // "1" skips verification everywhere
	EnvInsecureHosts = "FRIEDMAN_TLS_INSECURE_HOSTS" // extra hosts treated like loopback
)

// GenerateCert writes a self-signed certificate for localhost and this host.
func GenerateCert(certPath, keyPath string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating private key: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generating serial number: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Friedman"},
			CommonName:   hostname,
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost", hostname},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("creating certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("encoding private key: %w", err)
	}

	if err := writePEM(certPath, "CERTIFICATE", certDER, 0644); err != nil {
		return err
	}
	return writePEM(keyPath, "EC PRIVATE KEY", keyDER, 0600)
}

func writePEM(path, blockType string, der []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s directory: %w", filepath.Base(path), err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// EnsureCert generates a certificate unless both files already exist.
func EnsureCert(certPath, keyPath string) error {
	if fileExists(certPath) && fileExists(keyPath) {
		return nil
	}
	return GenerateCert(certPath, keyPath)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ServerConfig returns the TLS settings the shell listens with.
func ServerConfig() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// loopbackTransport verifies certificates except for HTTPS to loopback or
// explicitly listed hosts.
type loopbackTransport struct {
	secure        http.RoundTripper
	insecure      http.RoundTripper
	insecureAll   bool
	insecureHosts map[string]struct{}
}

func (t *loopbackTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.insecureAll {
		return t.insecure.RoundTrip(req)
	}
	if req.URL.Scheme == "https" {
		host := req.URL.Hostname()
		if _, ok := t.insecureHosts[host]; ok || isLoopbackHost(host) {
			return t.insecure.RoundTrip(req)
		}
	}
	return t.secure.RoundTrip(req)
}

// NewHTTPClient returns a client that accepts the shell's self-signed
// certificate on loopback and verifies everything else.
// A zero timeout means none.
func NewHTTPClient(timeout time.Duration) *http.Client {
	secure := http.DefaultTransport.(*http.Transport).Clone()
	secure.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	insecure := http.DefaultTransport.(*http.Transport).Clone()
	insecure.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true}

	hosts := map[string]struct{}{}
	for _, host := range strings.Split(os.Getenv(EnvInsecureHosts), ",") {
		if host = strings.TrimSpace(host); host != "" {
			hosts[host] = struct{}{}
		}
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &loopbackTransport{
			secure:        secure,
			insecure:      insecure,
			insecureAll:   os.Getenv(EnvInsecure) == "1",
			insecureHosts: hosts,
		},
	}
}

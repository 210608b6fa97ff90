// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 LoginGuard Contributors

// Package tls provides certificate generation and loading for serving the
// login API over HTTPS.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/oops"
)

// File names written by SaveCertificates.
const (
	CAFile     = "root-ca.crt"
	CAKeyFile  = "root-ca.key"
	ServerName = "server"
)

// renewBefore is how close to expiry a generated certificate is replaced.
const renewBefore = 7 * 24 * time.Hour

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServerCert holds a server certificate and private key.
type ServerCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
	Name        string
}

func serial() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").Wrapf(err, "generate serial")
	}
	return n, nil
}

// GenerateCA creates a new root CA for development certificates.
func GenerateCA() (*CA, error) {
	errb := oops.Code("TLS_GENERATE_FAILED").With("cert", "ca")

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errb.Wrapf(err, "generate CA key")
	}
	sn, err := serial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: sn,
		Subject: pkix.Name{
			Organization: []string{"loginguard"},
			CommonName:   "loginguard development CA",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, errb.Wrapf(err, "create CA certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errb.Wrapf(err, "parse CA certificate")
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServerCert creates a server certificate signed by ca, valid for
// localhost, 127.0.0.1, ::1 and any extra hosts (DNS names or IPs).
func GenerateServerCert(ca *CA, hosts ...string) (*ServerCert, error) {
	errb := oops.Code("TLS_GENERATE_FAILED").With("cert", ServerName)

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errb.Wrapf(err, "generate server key")
	}
	sn, err := serial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: sn,
		Subject: pkix.Name{
			Organization: []string{"loginguard"},
			CommonName:   "loginguard",
		},
		NotBefore:   time.Now().Add(-time.Minute),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	for _, h := range hosts {
		if h == "" || h == "localhost" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, errb.Wrapf(err, "create server certificate")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errb.Wrapf(err, "parse server certificate")
	}
	return &ServerCert{Certificate: cert, PrivateKey: key, Name: ServerName}, nil
}

// SaveCertificates saves the CA and optionally a server certificate to dir.
// Server files are named {name}.crt and {name}.key.
func SaveCertificates(dir string, ca *CA, serverCert *ServerCert) error {
	errb := oops.Code("TLS_SAVE_FAILED").With("dir", dir)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errb.Wrapf(err, "create certs directory")
	}
	if err := saveCert(filepath.Join(dir, CAFile), ca.Certificate); err != nil {
		return errb.Wrapf(err, "save CA certificate")
	}
	if err := saveKey(filepath.Join(dir, CAKeyFile), ca.PrivateKey); err != nil {
		return errb.Wrapf(err, "save CA key")
	}

	if serverCert != nil {
		certFile, keyFile := ServerFiles(dir, serverCert.Name)
		if err := saveCert(certFile, serverCert.Certificate); err != nil {
			return errb.Wrapf(err, "save server certificate")
		}
		if err := saveKey(keyFile, serverCert.PrivateKey); err != nil {
			return errb.Wrapf(err, "save server key")
		}
	}
	return nil
}

// ServerFiles returns the certificate and key paths for name in dir.
func ServerFiles(dir, name string) (certFile, keyFile string) {
	return filepath.Join(dir, name+".crt"), filepath.Join(dir, name+".key")
}

// LoadCA loads an existing CA from dir.
func LoadCA(dir string) (*CA, error) {
	errb := oops.Code("TLS_LOAD_FAILED").With("dir", dir)

	certPEM, err := os.ReadFile(filepath.Clean(filepath.Join(dir, CAFile)))
	if err != nil {
		return nil, errb.Wrapf(err, "read CA certificate")
	}
	keyPEM, err := os.ReadFile(filepath.Clean(filepath.Join(dir, CAKeyFile)))
	if err != nil {
		return nil, errb.Wrapf(err, "read CA key")
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, errb.Errorf("decode CA certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errb.Wrapf(err, "parse CA certificate")
	}

	block, _ = pem.Decode(keyPEM)
	if block == nil {
		return nil, errb.Errorf("decode CA key PEM")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, errb.Wrapf(err, "parse CA key")
	}

	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// EnsureSelfSigned returns a usable server certificate in dir, generating a
// CA and certificate when none exist or the existing one is close to expiry.
// An existing CA is reused so clients that trust it keep working.
func EnsureSelfSigned(dir string, hosts ...string) (certFile, keyFile string, err error) {
	certFile, keyFile = ServerFiles(dir, ServerName)

	if pair, loadErr := cryptotls.LoadX509KeyPair(certFile, keyFile); loadErr == nil {
		if pair.Leaf != nil && time.Until(pair.Leaf.NotAfter) > renewBefore {
			return certFile, keyFile, nil
		}
	}

	ca, err := LoadCA(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", "", err
		}
		if ca, err = GenerateCA(); err != nil {
			return "", "", err
		}
	}

	serverCert, err := GenerateServerCert(ca, hosts...)
	if err != nil {
		return "", "", err
	}
	if err := SaveCertificates(dir, ca, serverCert); err != nil {
		return "", "", err
	}
	return certFile, keyFile, nil
}

// LoadServerConfig loads a key pair into a server TLS configuration. An
// expired certificate is rejected.
func LoadServerConfig(certFile, keyFile string) (*cryptotls.Config, error) {
	errb := oops.Code("TLS_LOAD_FAILED").With("cert_file", certFile).With("key_file", keyFile)

	pair, err := cryptotls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errb.Wrapf(err, "load key pair")
	}
	leaf := pair.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
			return nil, errb.Wrapf(err, "parse certificate")
		}
	}
	now := time.Now()
	if now.After(leaf.NotAfter) {
		return nil, errb.With("not_after", leaf.NotAfter).Errorf("certificate expired")
	}
	if now.Before(leaf.NotBefore) {
		return nil, errb.With("not_before", leaf.NotBefore).Errorf("certificate not yet valid")
	}

	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{pair},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

func saveCert(path string, cert *x509.Certificate) error {
	return writePEM(path, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

func saveKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Wrapf(err, "marshal key")
	}
	return writePEM(path, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.With("path", path).Wrap(err)
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return oops.With("path", path).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}

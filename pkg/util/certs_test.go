package util

import (
	"bytes"
	"crypto/x509"
	"path/filepath"
	"testing"
)

func TestGetCertGeneratesThenReloads(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "certs", "server.pem")
	keyFile := filepath.Join(dir, "certs", "server-key.pem")

	generated, err := GetCert(certFile, keyFile)
	if err != nil {
		t.Fatalf("GetCert() failed: %v", err)
	}
	if len(generated.Certificate) != 1 || generated.PrivateKey == nil {
		t.Fatalf("generated certificate is incomplete")
	}

	loaded, err := GetCert(certFile, keyFile)
	if err != nil {
		t.Fatalf("second GetCert() failed: %v", err)
	}
	if !bytes.Equal(loaded.Certificate[0], generated.Certificate[0]) {
		t.Fatalf("second call generated a new certificate instead of loading it")
	}

	pool, err := GetRootPool(certFile)
	if err != nil || pool == nil {
		t.Fatalf("GetRootPool() = %v, %v", pool, err)
	}
}

func TestLoadRejectsMissingAndMalformed(t *testing.T) {
	if _, err := LoadCertificate(filepath.Join(t.TempDir(), "nope.pem")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.pem")
	keyFile := filepath.Join(dir, "server-key.pem")
	if _, err := GetCert(certFile, keyFile); err != nil {
		t.Fatalf("GetCert() failed: %v", err)
	}
	if _, err := LoadKey(certFile); err == nil {
		t.Fatalf("expected an error loading a certificate as a key")
	}
	if _, err := LoadCertificate(keyFile); err == nil {
		t.Fatalf("expected an error loading a key as a certificate")
	}
}

func TestGetClientCertIsSignedByRoot(t *testing.T) {
	dir := t.TempDir()
	rootCert := filepath.Join(dir, "server.pem")
	rootKey := filepath.Join(dir, "server-key.pem")
	clientCert := filepath.Join(dir, "client.pem")
	clientKey := filepath.Join(dir, "client-key.pem")

	issued, err := GetClientCert(rootCert, rootKey, clientCert, clientKey)
	if err != nil {
		t.Fatalf("GetClientCert() failed: %v", err)
	}
	leaf, err := x509.ParseCertificate(issued.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate() failed: %v", err)
	}

	pool, err := GetRootPool(rootCert)
	if err != nil {
		t.Fatalf("GetRootPool() failed: %v", err)
	}
	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	if err != nil {
		t.Fatalf("client certificate does not chain to the gateway root: %v", err)
	}

	again, err := GetClientCert(rootCert, rootKey, clientCert, clientKey)
	if err != nil {
		t.Fatalf("second GetClientCert() failed: %v", err)
	}
	if !bytes.Equal(again.Certificate[0], issued.Certificate[0]) {
		t.Fatalf("second call issued a new certificate instead of loading it")
	}
}

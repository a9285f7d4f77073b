package cryptoutils

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TLSCSR represents a Certificate Signing Request in PEM format.
type TLSCSR []byte

// NewTLSCSR creates a new CSR object from PEM-encoded data with validation.
func NewTLSCSR(data []byte) (TLSCSR, error) {
	// Validate PEM format
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return TLSCSR{}, errors.New("invalid CSR: not in PEM format or not a certificate request")
	}

	// Validate CSR structure
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return TLSCSR{}, fmt.Errorf("invalid CSR structure: %w", err)
	}

	if err := csr.CheckSignature(); err != nil {
		return TLSCSR{}, fmt.Errorf("invalid CSR signature: %w", err)
	}

	return TLSCSR(data), nil
}

// Validate checks if the CSR is properly formed.
func (csr TLSCSR) Validate() error {
	_, err := NewTLSCSR(csr)
	return err
}

// GetX509CSR returns the parsed X.509 certificate request.
func (csr TLSCSR) GetX509CSR() (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csr)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParseCertificateRequest(block.Bytes)
}

// SingleLine returns the PEM text with all line breaks removed, which is the
// form the bulk registration manifest carries in its CSR field.
func (csr TLSCSR) SingleLine() string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(string(csr))
}

// TLSCert represents a TLS Certificate in PEM format.
type TLSCert []byte

// NewTLSCert creates a new certificate object from PEM-encoded data with validation.
func NewTLSCert(data []byte) (TLSCert, error) {
	// Validate PEM format
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return TLSCert{}, errors.New("invalid certificate: not in PEM format or not a certificate")
	}

	// Validate certificate structure
	_, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return TLSCert{}, fmt.Errorf("invalid certificate structure: %w", err)
	}

	return TLSCert(data), nil
}

// Validate checks if the certificate is properly formed.
func (cert TLSCert) Validate() error {
	_, err := NewTLSCert(cert)
	return err
}

// GetX509Cert returns the parsed X.509 certificate.
func (cert TLSCert) GetX509Cert() (*x509.Certificate, error) {
	block, _ := pem.Decode(cert)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// DER returns the certificate in its binary DER encoding.
func (cert TLSCert) DER() ([]byte, error) {
	block, _ := pem.Decode(cert)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("failed to decode certificate PEM block")
	}
	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return nil, fmt.Errorf("invalid certificate structure: %w", err)
	}
	return block.Bytes, nil
}

// IsExpired checks if the certificate has expired.
func (cert TLSCert) IsExpired() (bool, error) {
	x509Cert, err := cert.GetX509Cert()
	if err != nil {
		return false, err
	}
	return x509Cert.NotAfter.Before(time.Now()), nil
}

// DevicePrivkey represents a device private key in PEM format.
// Both PKCS#8 ("PRIVATE KEY") and PKCS#1 ("RSA PRIVATE KEY") encodings are accepted.
type DevicePrivkey []byte

// NewDevicePrivkey creates a new private key object from PEM-encoded data with validation.
func NewDevicePrivkey(data []byte) (DevicePrivkey, error) {
	priv := DevicePrivkey(data)
	if _, err := priv.GetPrivateKey(); err != nil {
		return DevicePrivkey{}, fmt.Errorf("invalid private key: %w", err)
	}
	return priv, nil
}

// Validate checks if the private key is properly formed.
func (priv DevicePrivkey) Validate() error {
	_, err := NewDevicePrivkey(priv)
	return err
}

// GetPrivateKey returns the parsed private key.
func (priv DevicePrivkey) GetPrivateKey() (crypto.Signer, error) {
	block, _ := pem.Decode(priv)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type: %T", key)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

// RSADER returns the key as PKCS#1 DER, the encoding of `openssl rsa -outform DER -traditional`.
func (priv DevicePrivkey) RSADER() ([]byte, error) {
	key, err := priv.GetPrivateKey()
	if err != nil {
		return nil, err
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("expected an RSA private key, got %T", key)
	}
	return x509.MarshalPKCS1PrivateKey(rsaKey), nil
}

// GetPublicKey returns the public half of the key.
func (priv DevicePrivkey) GetPublicKey() (crypto.PublicKey, error) {
	key, err := priv.GetPrivateKey()
	if err != nil {
		return nil, err
	}

	switch key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
		return key.Public(), nil
	default:
		return nil, fmt.Errorf("unsupported private key type: %T", key)
	}
}

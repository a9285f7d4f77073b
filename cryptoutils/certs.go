package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// DefaultRSABits is the modulus size of device keys.
const DefaultRSABits = 2048

// Subject holds the distinguished name fields placed in device CSRs.
type Subject struct {
	Country      string
	Province     string
	Locality     string
	Organization string
	CommonName   string
}

// DefaultSubject is the subject used when none is configured.
var DefaultSubject = Subject{
	Country:      "US",
	Province:     "CA",
	Organization: "SmartGarden",
}

// ParseSubject parses an OpenSSL style subject such as "/C=US/ST=CA/O=SmartGarden".
// Unknown attributes are rejected.
func ParseSubject(s string) (Subject, error) {
	var subj Subject
	if !strings.HasPrefix(s, "/") {
		return subj, fmt.Errorf("subject %q must start with '/'", s)
	}

	for _, part := range strings.Split(strings.TrimPrefix(s, "/"), "/") {
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok || value == "" {
			return subj, fmt.Errorf("malformed subject component %q", part)
		}
		switch key {
		case "C":
			subj.Country = value
		case "ST":
			subj.Province = value
		case "L":
			subj.Locality = value
		case "O":
			subj.Organization = value
		case "CN":
			subj.CommonName = value
		default:
			return subj, fmt.Errorf("unsupported subject attribute %q", key)
		}
	}

	return subj, nil
}

// String returns the subject in OpenSSL "-subj" form.
func (s Subject) String() string {
	var b strings.Builder
	for _, kv := range [][2]string{
		{"C", s.Country},
		{"ST", s.Province},
		{"L", s.Locality},
		{"O", s.Organization},
		{"CN", s.CommonName},
	} {
		if kv[1] == "" {
			continue
		}
		b.WriteString("/" + kv[0] + "=" + kv[1])
	}
	return b.String()
}

func (s Subject) pkixName() pkix.Name {
	name := pkix.Name{CommonName: s.CommonName}
	if s.Country != "" {
		name.Country = []string{s.Country}
	}
	if s.Province != "" {
		name.Province = []string{s.Province}
	}
	if s.Locality != "" {
		name.Locality = []string{s.Locality}
	}
	if s.Organization != "" {
		name.Organization = []string{s.Organization}
	}
	return name
}

// CreateCSRWithRandomKey generates a new RSA key pair and creates a Certificate
// Signing Request for the given subject.
//
// Returns:
//   - Private key in PKCS#8 PEM format
//   - CSR in PEM format
//   - Error if key generation or CSR creation fails
func CreateCSRWithRandomKey(subject Subject, bits int) (DevicePrivkey, TLSCSR, error) {
	if bits == 0 {
		bits = DefaultRSABits
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	csrTemplate := x509.CertificateRequest{
		Subject:            subject.pkixName(),
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &csrTemplate, privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CSR: %w", err)
	}

	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})

	privateKeyBytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyBytes})
	return DevicePrivkey(keyPEM), TLSCSR(csrPEM), nil
}

// VerifyKeyPair checks that the certificate was issued for the public half of the private key.
func VerifyKeyPair(keyPEM DevicePrivkey, certPEM TLSCert) error {
	privatePublicKey, err := keyPEM.GetPublicKey()
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	cert, err := certPEM.GetX509Cert()
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	switch certKey := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if !certKey.Equal(privatePublicKey) {
			return errors.New("private key doesn't match certificate")
		}
		return nil
	case *ecdsa.PublicKey:
		if !certKey.Equal(privatePublicKey) {
			return errors.New("private key doesn't match certificate")
		}
		return nil
	default:
		return fmt.Errorf("unsupported certificate key type: %T", cert.PublicKey)
	}
}

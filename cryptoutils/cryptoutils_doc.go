// Package cryptoutils provides the certificate handling used for device
// identities.
//
// Device keys, certificate signing requests and issued certificates are kept
// as PEM encoded byte slices wrapped in distinct types:
//
//   - DevicePrivkey: a device private key (PKCS#1, PKCS#8 or SEC 1)
//   - TLSCSR: a certificate signing request sent for registration
//   - TLSCert: a certificate issued for a device
//
// # Key Functions
//
// CreateCSRWithRandomKey - Generates an RSA key and a CSR for a Subject
//
// VerifyKeyPair - Checks that a certificate was issued for a private key
//
// ParseSubject - Parses an OpenSSL style subject such as "/C=US/ST=CA/O=SmartGarden"
//
// The DER accessors (TLSCert.DER and DevicePrivkey.RSADER) produce the
// encodings firmware images embed.
package cryptoutils

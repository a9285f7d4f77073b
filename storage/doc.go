// Package storage holds the two places provisioning material lives.
//
// CertStore keeps per-device keys, CSRs, issued certificates and firmware
// binaries in a local directory tree:
//
//	certs/key/<name>.key
//	certs/csr/<name>.csr
//	certs/crt/<name>.crt
//	certs/bin/<name>/{cert.der,private.der,secrets.h}
//
// S3Backend uploads the provisioning manifest that a bulk registration task
// reads its input from.
package storage

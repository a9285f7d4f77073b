// Package interfaces defines core interfaces and types for the IoT thing
// provisioner, separating interface definitions from implementations.
//
// The package provides interfaces for the key components of the system:
//
// # Registration Interfaces
//
// ThingRegistry: Submits, inspects and stops bulk thing registration tasks and
// lists the report links a finished task exposes.
//
// ReportFetcher: Downloads a task report and decodes its JSON-lines records.
//
// # Storage Interfaces
//
// ObjectStore: Receives the provisioning manifest that a registration task
// reads its input from.
//
// CertificateStore: Owns the local tree of keys, CSRs, issued certificates and
// firmware binaries, keyed by device name.
//
// # Tooling Interfaces
//
// Toolchain: Key and CSR generation, PEM to DER conversion and C array dumps,
// backed either by external programs or by native Go code.
//
// # Types
//
//   - Device: a thing name and the hardware identifier it is registered with
//   - ProvisioningRecord: one line of the bulk registration manifest
//   - RegistrationTask: status snapshot of a bulk registration task
//   - RegistrationResult: one line of a task results report
package interfaces

// Package provisioner runs the bulk thing provisioning pipeline.
//
// For a batch of devices the Provisioner generates a private key and CSR per
// device, assembles the JSON-lines provisioning manifest, uploads it to the
// object store, starts a bulk registration task, waits for it to complete,
// downloads the results report and stores every issued certificate next to
// the device key.
//
// The pipeline aborts the whole batch on the first error. Results are
// validated in full before any certificate is written.
package provisioner

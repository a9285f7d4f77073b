// Package main (cmd/thingctl) implements the command line front end of the
// IoT thing provisioner.
//
// The provisioning pipeline generates an RSA key and CSR for every device,
// writes them to a JSON-lines manifest, uploads the manifest to S3 and starts
// an AWS IoT bulk thing registration task against it. Once the task completes
// the issued certificates are downloaded from the task results report and
// stored next to the device keys.
//
// The conversion pipeline turns every stored certificate and key pair into DER
// files and a C header (secrets.h) that firmware builds embed.
//
// # Commands
//
//   - register: full pipeline, from devices to stored certificates
//   - manifest: generate keys, CSRs and the manifest without touching AWS
//   - status: print the current state of a registration task
//   - wait: block until a registration task completes
//   - fetch-certs: download and store the certificates of a completed task
//   - stop: cancel a running registration task
//   - convert: produce DER files and secrets.h for every device
//
// # Configuration
//
// Registration reads BUCKET_NAME, BUCKET_FILE, ROLE_ARN and TEMPLATE from the
// environment, each overridable by a flag. AWS credentials come from the
// standard SDK chain; the region defaults to us-west-2.
//
// Example:
//
//	BUCKET_NAME=things ROLE_ARN=arn:aws:iam::123456789012:role/provisioning \
//	TEMPLATE=template.json thingctl register --device ss-1=123 --device ss-2=456
//	thingctl convert
package main

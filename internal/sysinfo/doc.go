// Package sysinfo serves and fetches a description of the server host.
//
// Endpoint:
//   - GET /system -> {"username", "platform", "processor", "hostname", "cpus"}
package sysinfo

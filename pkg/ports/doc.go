// Package ports reserves and releases local ports for engine
// processes. Allocator state is the only process-wide shared resource
// in the proxy; every reserve and release takes a short exclusive
// section and nothing else.
package ports

// Package transport provides the multiplexing primitive hitmux drives.
//
// A Transport builds request handles from option sets, registers them, and
// advances all registered handles from a single caller:
//   - NewHandle turns an Options set into a Handle without doing any I/O
//   - Add and Remove register and deregister handles
//   - Perform starts and advances transfers without blocking
//   - InfoRead hands out completion messages with a per-handle Code
//   - Wait blocks until a transfer finishes or a timeout elapses
//
// NetTransport implements it on net/http with a connection pool per
// transport, optional Shares for cookies and connections, and zerolog
// diagnostics for verbose handles.
package transport

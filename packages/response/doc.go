// Package response splits a finished handle's buffered content into a body
// and a header map with normalized keys (content-type becomes contentType).
package response

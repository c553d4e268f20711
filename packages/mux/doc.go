// Package mux runs batches of independent HTTP requests concurrently over one
// reusable transport.
//
// A Context is created once and reused:
//
//	ctx := mux.New()
//	defer ctx.Close()
//
//	ctx.SetDefaults(transport.Options{transport.OptReturnTransfer: true})
//	handles, err := ctx.Execute([]transport.Options{
//		{transport.OptURL: "https://example.com/a"},
//		{transport.OptURL: "https://example.com/b"},
//	})
//
// Execute blocks until every request finished. Completion order is up to the
// network, the returned handles always follow input order. A batch is all or
// nothing: one failed request fails the call with a *BatchError naming every
// failed index, and no handle is returned.
package mux

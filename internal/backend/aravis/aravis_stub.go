//go:build !aravis

package aravis

// This build does not link libaravis; build with -tags aravis on a host
// with the Aravis SDK installed to enable this backend. backend.New
// reports an *UnsupportedError for backend.Aravis until then.

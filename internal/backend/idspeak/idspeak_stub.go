//go:build !idspeak

package idspeak

// This build does not link ids_peak_comfort_c; build with -tags idspeak on
// a host with the IDS peak SDK installed to enable this backend.
// backend.New reports an *UnsupportedError for backend.IdsPeak until then.

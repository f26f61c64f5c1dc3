//go:build !spinnaker

package spinnaker

// This build does not link libSpinnaker_C; build with -tags spinnaker on a
// host with the Spinnaker SDK installed to enable this backend.
// backend.New reports an *UnsupportedError for backend.Spinnaker until then.

// Package spinnaker implements the backend.Interface against Teledyne
// FLIR's SpinnakerC API, the C binding shipped alongside the C++ Spinnaker
// SDK. Building it requires the `spinnaker` build tag and libSpinnaker_C's
// headers on the host; without the tag, NewBackend is not registered and
// backend.New(backend.Spinnaker, ...) reports an *UnsupportedError.
package spinnaker

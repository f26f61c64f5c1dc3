// Package idspeak implements the backend.Interface against the IDS peak
// Comfort C API (the C binding IDS ships alongside the C++ peak SDK).
// Building it requires the `idspeak` build tag and ids_peak_comfort_c's
// headers on the host; without the tag, NewBackend is not registered and
// backend.New(backend.IdsPeak, ...) reports an *UnsupportedError.
package idspeak

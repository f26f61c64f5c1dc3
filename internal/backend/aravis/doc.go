// Package aravis implements the backend.Interface against the Aravis
// GenICam SDK (https://github.com/AravisProject/aravis). Building it
// requires the `aravis` build tag and libaravis's development headers on
// the host; without the tag, NewBackend is not registered and
// backend.New(backend.Aravis, ...) reports an *UnsupportedError.
package aravis

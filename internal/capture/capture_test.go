package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/xvii-vision/genicvbridge/internal/backend"
	"github.com/xvii-vision/genicvbridge/internal/fakebackend"
)

// fakeKind is a backend.Kind slot reused across tests, registered fresh
// each time so tests don't interfere with one another's open-attempt
// counters.
const fakeKind = backend.Aravis

func TestOpenRejectsNegativeIndex(t *testing.T) {
	fakebackend.Register(fakeKind, fakebackend.Config{})

	c := New()
	err := c.Open(-1, fakeKind, true, nil)
	require.Error(t, err)
	_, ok := err.(*backend.InvalidArgumentError)
	assert.True(t, ok, "expected InvalidArgumentError, got %T", err)
}

func TestOpenUnsupportedBackend(t *testing.T) {
	c := New()
	err := c.Open(0, backend.Spinnaker, true, nil)
	// Whether this is Unsupported depends on build tags / earlier tests'
	// registrations in this process; skip if some other test registered it.
	if !backend.Compiled(backend.Spinnaker) {
		require.Error(t, err)
		_, ok := err.(*backend.UnsupportedError)
		assert.True(t, ok, "expected UnsupportedError, got %T", err)
	}
}

func TestOpenSucceedsAndIsOpened(t *testing.T) {
	fakebackend.Register(fakeKind, fakebackend.Config{})

	c := New()
	require.NoError(t, c.Open(0, fakeKind, true, nil))
	assert.True(t, c.IsOpened())
	assert.Equal(t, fakeKind, c.Kind())
}

func TestExceptionModeOffSuppressesErrors(t *testing.T) {
	c := New()
	c.SetExceptionMode(false)

	ok, err := c.Grab()
	assert.NoError(t, err)
	assert.False(t, ok)

	v, err := c.Get(backend.Exposure)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestReadGrabsAndRetrieves(t *testing.T) {
	fakebackend.Register(fakeKind, fakebackend.Config{FrameSize: 8})

	c := New()
	require.NoError(t, c.Open(0, fakeKind, true, nil))

	mat := gocv.NewMat()
	defer mat.Close()

	ok, err := c.Read(&mat)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mat.Empty())
}

func TestRetrieveWithoutGrabReturnsFalse(t *testing.T) {
	fakebackend.Register(fakeKind, fakebackend.Config{})

	c := New()
	require.NoError(t, c.Open(0, fakeKind, true, nil))

	mat := gocv.NewMat()
	defer mat.Close()

	// A freshly opened backend has no latched frame until Grab is called.
	ok, err := c.Retrieve(&mat)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mat.Empty())

	// A façade with no backend open reports an error instead.
	empty := New()
	ok, err = empty.Retrieve(&mat)
	require.Error(t, err)
	assert.False(t, ok)
}

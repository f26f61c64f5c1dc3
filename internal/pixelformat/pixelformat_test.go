package pixelformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestParseDevicePixelFormat(t *testing.T) {
	cases := map[string]PixelFormat{
		"Mono8":    Mono8,
		"BayerRG8": BayerRG8,
		"BayerBG8": BayerBG8,
		"Garbage":  Unknown,
		"":         Unknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseDevicePixelFormat(in), "input %q", in)
	}
}

func TestDebayerPassthroughWhenDisabled(t *testing.T) {
	raw := make([]byte, 4*4)
	for i := range raw {
		raw[i] = byte(i)
	}

	out := gocv.NewMat()
	defer out.Close()

	err := Debayer(BayerRG8, false, 4, 4, raw, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Channels())
	assert.Equal(t, 4, out.Rows())
	assert.Equal(t, 4, out.Cols())
}

func TestDebayerPassthroughForMono8(t *testing.T) {
	raw := make([]byte, 2*2)

	out := gocv.NewMat()
	defer out.Close()

	err := Debayer(Mono8, true, 2, 2, raw, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Channels())
}

func TestDebayerConvertsBayerToBGR(t *testing.T) {
	raw := make([]byte, 4*4)

	out := gocv.NewMat()
	defer out.Close()

	err := Debayer(BayerRG8, true, 4, 4, raw, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Channels())
}

func TestDebayerRejectsShortBuffer(t *testing.T) {
	out := gocv.NewMat()
	defer out.Close()

	err := Debayer(Mono8, true, 4, 4, make([]byte, 4), &out)
	assert.Error(t, err)
}

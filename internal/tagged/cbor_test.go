package tagged

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCBORRoundTrip(t *testing.T) {
	in := Array(
		sampleDocument(),
		Float(math.NaN()),
		Float(math.Copysign(0, -1)),
		Reference(Ref{Store: "[DEFAULT]", Path: "rooms/a"}),
		Transform(FieldTransform{Op: OpDelete}),
	)

	data, err := in.MarshalCBOR()
	require.NoError(t, err)

	var out Value
	require.NoError(t, out.UnmarshalCBOR(data))
	assert.True(t, Equal(in, out))
}

func TestCBORDeterministic(t *testing.T) {
	a, err := sampleDocument().MarshalCBOR()
	require.NoError(t, err)
	b, err := sampleDocument().MarshalCBOR()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCBORRejectsGarbage(t *testing.T) {
	var v Value
	assert.ErrorIs(t, v.UnmarshalCBOR([]byte{0xff, 0x00}), ErrMalformedValue)
}

package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityRoundTrip(t *testing.T) {
	var c Identity
	data, err := c.Encode([]byte("hello"))
	require.NoError(t, err)
	v, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), v)
}

type widget struct {
	Name  string
	Count int
}

func TestJSONRoundTrip(t *testing.T) {
	var c JSON[widget]
	w := widget{Name: "bolt", Count: 3}

	data, err := c.Encode(w)
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, w, got)
}

func TestJSONDecodeError(t *testing.T) {
	var c JSON[widget]
	_, err := c.Decode([]byte("not json"))
	require.Error(t, err)
}

func TestGobRoundTrip(t *testing.T) {
	var c Gob[widget]
	w := widget{Name: "nut", Count: 9}

	data, err := c.Encode(w)
	require.NoError(t, err)

	got, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, w, got)
}

package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndAtRoundTrip(t *testing.T) {
	l := New(10, OverflowFatal)
	idx := l.Append(KindRNGDraw, []byte{1, 2, 3})
	assert.Equal(t, 0, idx)

	rec := l.At(0)
	assert.Equal(t, KindRNGDraw, rec.Kind)
	assert.Equal(t, []byte{1, 2, 3}, rec.Body)
}

func TestZeroLengthBodyIsLegal(t *testing.T) {
	l := New(10, OverflowFatal)
	l.Append(KindSchedulingDecision, nil)
	assert.Equal(t, 1, l.Len())
	assert.Empty(t, l.At(0).Body)
}

func TestOverflowFatalPanics(t *testing.T) {
	l := New(2, OverflowFatal)
	l.Append(KindRNGDraw, []byte("a"))
	l.Append(KindRNGDraw, []byte("b"))
	assert.Panics(t, func() { l.Append(KindRNGDraw, []byte("c")) })
}

func TestOverflowSpillDropsOldest(t *testing.T) {
	l := New(2, OverflowSpill)
	l.Append(KindRNGDraw, []byte("a"))
	l.Append(KindRNGDraw, []byte("b"))
	l.Append(KindRNGDraw, []byte("c"))

	require.Equal(t, 2, l.Len())
	assert.Equal(t, []byte("b"), l.At(0).Body)
	assert.Equal(t, []byte("c"), l.At(1).Body)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := New(100, OverflowFatal)
	l.Append(KindRNGDraw, []byte{0xDE, 0xAD})
	l.Append(KindSchedulingDecision, nil)
	l.Append(KindFaultRollOutcome, []byte("fault"))
	l.Append(KindCrashPointSelection, []byte{0xFF})

	encoded := l.Encode()
	decoded, err := Decode(encoded, 100, OverflowFatal)
	require.NoError(t, err)
	require.Equal(t, l.Len(), decoded.Len())
	for i := 0; i < l.Len(); i++ {
		assert.Equal(t, l.At(i), decoded.At(i))
	}
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	l := New(10, OverflowFatal)
	l.Append(KindRNGDraw, []byte("abc"))
	encoded := l.Encode()

	_, err := Decode(encoded[:len(encoded)-1], 10, OverflowFatal)
	assert.Error(t, err)
}

func TestPrefixTruncates(t *testing.T) {
	l := New(10, OverflowFatal)
	for i := 0; i < 5; i++ {
		l.Append(KindRNGDraw, []byte{byte(i)})
	}
	p := l.Prefix(3)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, byte(2), p.At(2).Body[0])
}

func TestPrefixBeyondLengthClampsToLen(t *testing.T) {
	l := New(10, OverflowFatal)
	l.Append(KindRNGDraw, []byte{1})
	p := l.Prefix(50)
	assert.Equal(t, 1, p.Len())
}

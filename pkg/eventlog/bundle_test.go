package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLog() *Log {
	l := New(100, OverflowFatal)
	l.Append(KindRNGDraw, []byte{1, 2, 3})
	l.Append(KindSchedulingDecision, []byte{42})
	l.Append(KindFaultRollOutcome, nil)
	return l
}

func TestBundleRoundTripWithoutFailure(t *testing.T) {
	b := &Bundle{
		HarnessVersion: "0.1.0-test",
		Seed:           12345,
		ScenarioID:     "baseline",
		Log:            sampleLog(),
	}

	data, err := b.Write()
	require.NoError(t, err)

	got, err := ReadBundle(data, 100, OverflowFatal)
	require.NoError(t, err)

	assert.Equal(t, b.HarnessVersion, got.HarnessVersion)
	assert.Equal(t, b.Seed, got.Seed)
	assert.Equal(t, b.ScenarioID, got.ScenarioID)
	assert.Nil(t, got.Failure)
	require.Equal(t, b.Log.Len(), got.Log.Len())
	for i := 0; i < b.Log.Len(); i++ {
		assert.Equal(t, b.Log.At(i), got.Log.At(i))
	}
}

func TestBundleRoundTripWithFailure(t *testing.T) {
	b := &Bundle{
		HarnessVersion: "0.1.0-test",
		Seed:           1,
		ScenarioID:     "byzantine_inflated_commit",
		Log:            sampleLog(),
		Failure: &FailureInfo{
			InvariantName:    "prefix-property",
			ViolationSummary: "offset 7 diverges between replica 0 and replica 2",
			EventIndex:       987,
			SnapshotDigest:   [32]byte{0xAA, 0xBB},
		},
	}

	data, err := b.Write()
	require.NoError(t, err)

	got, err := ReadBundle(data, 100, OverflowFatal)
	require.NoError(t, err)
	require.NotNil(t, got.Failure)
	assert.Equal(t, b.Failure.InvariantName, got.Failure.InvariantName)
	assert.Equal(t, b.Failure.ViolationSummary, got.Failure.ViolationSummary)
	assert.Equal(t, b.Failure.EventIndex, got.Failure.EventIndex)
	assert.Equal(t, b.Failure.SnapshotDigest, got.Failure.SnapshotDigest)
}

func TestReadBundleRejectsBadMagic(t *testing.T) {
	data := []byte{'X', 'X', 'X', 'X', 0, 1}
	_, err := ReadBundle(data, 100, OverflowFatal)
	assert.Error(t, err)
}

func TestReadBundleRejectsVersionSkew(t *testing.T) {
	b := &Bundle{HarnessVersion: "v", Seed: 1, ScenarioID: "s", Log: sampleLog()}
	data, err := b.Write()
	require.NoError(t, err)

	// Corrupt the version field (bytes 4-5, big-endian uint16) to a value
	// that will never be a supported format version.
	data[4] = 0xFF
	data[5] = 0xFF

	_, err = ReadBundle(data, 100, OverflowFatal)
	assert.Error(t, err)
}

func TestReadBundleRejectsTruncatedData(t *testing.T) {
	b := &Bundle{HarnessVersion: "v", Seed: 1, ScenarioID: "s", Log: sampleLog()}
	data, err := b.Write()
	require.NoError(t, err)

	_, err = ReadBundle(data[:10], 100, OverflowFatal)
	assert.Error(t, err)
}

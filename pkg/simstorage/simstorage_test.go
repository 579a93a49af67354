package simstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/viewharness/pkg/simrng"
)

func noFaultPolicy() FaultPolicy {
	return FaultPolicy{BlockSize: 16}
}

func TestWriteThenFsyncMakesDataDurable(t *testing.T) {
	rng := simrng.New(1)
	d := NewDevice(rng, noFaultPolicy())

	out := d.Write(0, []byte("hello world"))
	require.True(t, out.Success)

	data, corrupted := d.Read(0, 11)
	assert.False(t, corrupted)
	// Not fsynced yet: durable read should not see the pending write.
	assert.NotEqual(t, "hello world", string(data))

	fs := d.Fsync()
	require.True(t, fs.Success)

	data, corrupted = d.Read(0, 11)
	assert.False(t, corrupted)
	assert.Equal(t, "hello world", string(data))
}

func TestFsyncFailureDropsPending(t *testing.T) {
	rng := simrng.New(2)
	policy := noFaultPolicy()
	policy.FsyncFailureProb = 1.0
	d := NewDevice(rng, policy)

	d.Write(0, []byte("data"))
	fs := d.Fsync()
	assert.False(t, fs.Success)

	data, _ := d.Read(0, 4)
	assert.NotEqual(t, "data", string(data))
}

func TestWriteFailureNeverEntersPendingSet(t *testing.T) {
	rng := simrng.New(3)
	policy := noFaultPolicy()
	policy.WriteFailureProb = 1.0
	d := NewDevice(rng, policy)

	out := d.Write(0, []byte("data"))
	assert.False(t, out.Success)
	assert.Equal(t, 0, out.BytesWritten)

	// Fsync-ing after an all-failed write should still "succeed" (no
	// pending writes to lose) and leave storage empty.
	fs := d.Fsync()
	assert.True(t, fs.Success)
	data, _ := d.Read(0, 4)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)
}

func TestPartialWriteReportsBytesWrittenLessThanRequested(t *testing.T) {
	rng := simrng.New(4)
	policy := noFaultPolicy()
	policy.PartialWriteProb = 1.0
	d := NewDevice(rng, policy)

	out := d.Write(0, []byte("abcdefgh"))
	assert.False(t, out.Success, "a partial write must never be reported as a successful operation")
	assert.Less(t, out.BytesWritten, 8)
	assert.True(t, out.Partial)
}

func TestCrashCleanShutdownPreservesPending(t *testing.T) {
	rng := simrng.New(5)
	d := NewDevice(rng, noFaultPolicy())
	d.Write(0, []byte("durable-on-clean-shutdown"))
	d.Crash(CrashCleanShutdown)

	data, _ := d.Read(0, len("durable-on-clean-shutdown"))
	assert.Equal(t, "durable-on-clean-shutdown", string(data))
}

func TestCrashAfterFsyncBeforeAckDoesNotAffectDurableState(t *testing.T) {
	rng := simrng.New(6)
	d := NewDevice(rng, noFaultPolicy())
	d.Write(0, []byte("already-durable"))
	d.Fsync()
	d.Crash(CrashAfterFsyncBeforeAck)

	data, _ := d.Read(0, len("already-durable"))
	assert.Equal(t, "already-durable", string(data))
}

func TestSnapshotIsPureAndDeterministic(t *testing.T) {
	rng := simrng.New(8)
	d := NewDevice(rng, noFaultPolicy())
	d.Write(0, []byte("snapshot-me-0123"))
	d.Fsync()

	s1 := d.Snapshot()
	s2 := d.Snapshot()
	assert.Equal(t, s1.RootHash, s2.RootHash)

	// Mutating the returned map must not affect the device's own state.
	for k := range s1.DurableBlocks {
		s1.DurableBlocks[k][0] = 0xFF
		break
	}
	s3 := d.Snapshot()
	assert.Equal(t, s2.RootHash, s3.RootHash)
}

func TestValidateRejectsOutOfRangeProbabilities(t *testing.T) {
	p := noFaultPolicy()
	p.WriteFailureProb = 1.5
	assert.Error(t, p.Validate())
}

func TestReorderFIFOIsIdentity(t *testing.T) {
	rng := simrng.New(9)
	d := NewDevice(rng, FaultPolicy{ReorderPolicy: ReorderFIFO})
	in := []PendingCompletion{{Offset: 3}, {Offset: 1}, {Offset: 2}}
	out := d.ReorderCompletions(in)
	assert.Equal(t, in, out)
}

func TestReorderElevatorSortsByOffset(t *testing.T) {
	rng := simrng.New(10)
	d := NewDevice(rng, FaultPolicy{ReorderPolicy: ReorderElevator})
	in := []PendingCompletion{{Offset: 30}, {Offset: 10}, {Offset: 20}}
	out := d.ReorderCompletions(in)
	require.Len(t, out, 3)
	assert.Equal(t, int64(10), out[0].Offset)
	assert.Equal(t, int64(20), out[1].Offset)
	assert.Equal(t, int64(30), out[2].Offset)
}

func TestZeroLengthWriteIsLegal(t *testing.T) {
	rng := simrng.New(11)
	d := NewDevice(rng, noFaultPolicy())
	out := d.Write(0, nil)
	assert.True(t, out.Success)
	assert.Equal(t, 0, out.BytesWritten)
}

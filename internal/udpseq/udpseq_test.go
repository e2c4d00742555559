package udpseq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink records every pushed block and hands out fresh zero-filled
// buffers, mimicking a blockpool.BlockPool-backed step input without
// pulling in the block package.
type fakeSink struct {
	blockSize int
	pushed    [][]byte
}

func (f *fakeSink) Push(buf []byte) bool {
	cp := append([]byte(nil), buf...)
	f.pushed = append(f.pushed, cp)
	return true
}

func (f *fakeSink) NewBlock() []byte {
	return make([]byte, f.blockSize)
}

type fakeAcker struct {
	acks []byte
}

func (f *fakeAcker) Ack(sender string, token byte) error {
	f.acks = append(f.acks, token)
	return nil
}

func payloadFor(seq uint64, writeSize int) []byte {
	p := make([]byte, writeSize)
	for i := range p {
		p[i] = byte(seq) + 1
	}
	return p
}

// S1: the reorder ("ordered") variant must reproduce the documented
// final counters for sequence [0,1,2,4,3,5].
func TestDeliverReorderVariantMatchesS1(t *testing.T) {
	sink := &fakeSink{blockSize: 48}
	cfg := Config{ReadSize: 8, WriteSize: 8, BlockSize: 48, AckPeriod: 0, Reorder: true}
	r, err := NewReceiver(cfg, sink, nil)
	require.NoError(t, err)

	seqs := []uint64{0, 1, 2, 4, 3, 5}
	var lastPushed bool
	for _, seq := range seqs {
		pushed, err := r.Deliver("10.0.0.1:1", seq, payloadFor(seq, 8))
		require.NoError(t, err)
		lastPushed = pushed
	}

	s := r.senders["10.0.0.1:1"]
	require.NotNil(t, s)
	assert.Equal(t, uint64(6), s.PktIn)
	assert.Equal(t, uint64(0), s.PktLost)
	assert.Equal(t, uint64(1), s.PktOOO)
	assert.Equal(t, uint64(1), s.OOOSum)
	assert.True(t, lastPushed, "6th packet should fill the last slot and flush the block")
	require.Len(t, sink.pushed, 1)
}

// The no-reorder variant always writes at ExpectedSeq, so an
// out-of-order arrival is counted but the hole it leaves behind is
// filled with whatever arrives next at that position.
func TestDeliverNoReorderVariantCountsLiterally(t *testing.T) {
	sink := &fakeSink{blockSize: 48}
	cfg := Config{ReadSize: 8, WriteSize: 8, BlockSize: 48, Reorder: false}
	r, err := NewReceiver(cfg, sink, nil)
	require.NoError(t, err)

	seqs := []uint64{0, 1, 2, 4, 3, 5}
	for _, seq := range seqs {
		_, err := r.Deliver("10.0.0.2:1", seq, payloadFor(seq, 8))
		require.NoError(t, err)
	}

	s := r.senders["10.0.0.2:1"]
	require.NotNil(t, s)
	assert.Equal(t, uint64(6), s.PktIn)
	// seq=4 arrives when ExpectedSeq=3: counted as 1 lost ahead of
	// expectation; seq=3 then arrives when ExpectedSeq=5: counted as
	// out of order (behind current expectation).
	assert.Equal(t, uint64(1), s.PktLost)
	assert.Equal(t, uint64(1), s.PktOOO)
}

func TestDeliverWritesPayloadAtExpectedOffsetWhenNoReorder(t *testing.T) {
	sink := &fakeSink{blockSize: 16}
	cfg := Config{ReadSize: 8, WriteSize: 8, BlockSize: 16, Reorder: false}
	r, err := NewReceiver(cfg, sink, nil)
	require.NoError(t, err)

	pushed, err := r.Deliver("a", 0, payloadFor(0, 8))
	require.NoError(t, err)
	assert.False(t, pushed)
	pushed, err = r.Deliver("a", 1, payloadFor(1, 8))
	require.NoError(t, err)
	assert.True(t, pushed)
	require.Len(t, sink.pushed, 1)
	assert.Equal(t, payloadFor(0, 8), sink.pushed[0][0:8])
	assert.Equal(t, payloadFor(1, 8), sink.pushed[0][8:16])
}

func TestDeliverRestartThresholdResetsSenderState(t *testing.T) {
	sink := &fakeSink{blockSize: 80}
	cfg := Config{ReadSize: 8, WriteSize: 8, BlockSize: 80, Reorder: true, RestartThreshold: 10}
	r, err := NewReceiver(cfg, sink, nil)
	require.NoError(t, err)

	_, err = r.Deliver("a", 0, payloadFor(0, 8))
	require.NoError(t, err)
	_, err = r.Deliver("a", 1000, payloadFor(1000, 8))
	require.NoError(t, err)

	s := r.senders["a"]
	require.NotNil(t, s)
	assert.Equal(t, uint64(1000), s.FirstSeq, "a jump past the restart threshold should reset tracking to the new PSN")
	assert.Equal(t, uint64(0), s.PktLost)
	assert.Equal(t, uint64(1), s.PktIn)
}

func TestSenderStateMapEvictsOldestBeyondMaxSenders(t *testing.T) {
	sink := &fakeSink{blockSize: 16}
	cfg := Config{ReadSize: 8, WriteSize: 8, BlockSize: 16, Reorder: true}
	r, err := NewReceiver(cfg, sink, nil)
	require.NoError(t, err)

	for i := 0; i < MaxSenders+1; i++ {
		addr := string(rune('a' + i))
		_, err := r.Deliver(addr, 0, payloadFor(0, 8))
		require.NoError(t, err)
	}

	assert.Len(t, r.senders, MaxSenders)
	_, stillPresent := r.senders["a"]
	assert.False(t, stillPresent, "the first sender should have been evicted")
	_, newest := r.senders[string(rune('a'+MaxSenders))]
	assert.True(t, newest)
}

func TestHandleReadFailurePushesPartialBlockWhenVariableAllowed(t *testing.T) {
	sink := &fakeSink{blockSize: 16}
	cfg := Config{ReadSize: 8, WriteSize: 8, BlockSize: 16, Reorder: true, AllowVariableBlock: true}
	r, err := NewReceiver(cfg, sink, nil)
	require.NoError(t, err)

	_, err = r.Deliver("a", 0, payloadFor(0, 8))
	require.NoError(t, err)

	r.HandleReadFailure()
	require.Len(t, sink.pushed, 1)
	assert.Len(t, sink.pushed[0], 8)
}

func TestHandleReadFailureDiscardsWhenVariableNotAllowed(t *testing.T) {
	sink := &fakeSink{blockSize: 16}
	cfg := Config{ReadSize: 8, WriteSize: 8, BlockSize: 16, Reorder: true, AllowVariableBlock: false}
	r, err := NewReceiver(cfg, sink, nil)
	require.NoError(t, err)

	_, err = r.Deliver("a", 0, payloadFor(0, 8))
	require.NoError(t, err)

	r.HandleReadFailure()
	assert.Empty(t, sink.pushed)
}

func TestDeliverSendsKeepAliveAckEveryAckPeriod(t *testing.T) {
	sink := &fakeSink{blockSize: 64}
	acker := &fakeAcker{}
	cfg := Config{ReadSize: 8, WriteSize: 8, BlockSize: 64, Reorder: true, AckPeriod: 2}
	r, err := NewReceiver(cfg, sink, acker)
	require.NoError(t, err)

	for seq := uint64(0); seq < 4; seq++ {
		_, err := r.Deliver("a", seq, payloadFor(seq, 8))
		require.NoError(t, err)
	}

	assert.Len(t, acker.acks, 2, "an ack should fire every AckPeriod packets")
}

func TestDecodeSeqParsesBigEndianPrefix(t *testing.T) {
	datagram := []byte{0, 0, 0, 0, 0, 0, 0, 7, 0xAA, 0xBB}
	seq, payload, err := DecodeSeq(datagram)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)
	assert.Equal(t, []byte{0xAA, 0xBB}, payload)
}

func TestDecodeSeqRejectsShortDatagram(t *testing.T) {
	_, _, err := DecodeSeq([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewReceiverRejectsReadSizeGreaterThanWriteSize(t *testing.T) {
	sink := &fakeSink{blockSize: 16}
	_, err := NewReceiver(Config{ReadSize: 16, WriteSize: 8, BlockSize: 16}, sink, nil)
	assert.Error(t, err)
}

func TestNewReceiverRejectsBlockSizeNotMultipleOfReadSize(t *testing.T) {
	sink := &fakeSink{blockSize: 10}
	_, err := NewReceiver(Config{ReadSize: 8, WriteSize: 8, BlockSize: 10}, sink, nil)
	assert.Error(t, err)
}

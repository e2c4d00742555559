// Package udpseq implements the UDP-sequence receiver (spec.md §4.5):
// each datagram carries a big-endian u64 sequence number ahead of its
// payload, and the receiver reconstructs downstream blocks at
// read_size stride while tracking per-sender loss/out-of-order/ack
// bookkeeping. Two variants share this bookkeeping: Reorder placates
// a reordering network by always writing at the packet's own
// PSN-derived offset; NoReorder (the no-reordering variant,
// "udpsnor" in original_source) always writes at the next *expected*
// offset regardless of what PSN arrived, trading reorder-tolerance
// for simplicity.
package udpseq

import (
	"encoding/binary"
	"fmt"
)

// MaxSenders bounds the per-sender state map (spec.md §4.5: "bounded
// map, capacity 8").
const MaxSenders = 8

// SenderState is the bookkeeping kept per source address. ExpectedSeq
// is the no-reorder variant's "next contiguous PSN expected" tracker;
// HighestSeq is the reorder variant's "highest PSN seen so far"
// tracker. Only one is meaningful for a given Config.Reorder setting.
type SenderState struct {
	FirstSeq    uint64
	ExpectedSeq uint64
	HighestSeq  uint64
	PktIn       uint64
	PktLost     uint64
	PktOOO      uint64
	OOOSum      uint64
	LastAckSeq  uint64
	started     bool
}

// Config holds the sizing and policy knobs a Receiver needs.
type Config struct {
	ReadSize            int    // bytes written per packet's payload slot
	WriteSize           int    // bytes received per datagram's payload (>= ReadSize)
	BlockSize           int    // bytes per downstream block
	AckPeriod           uint64 // send a keep-alive ack every this many packets
	RestartThreshold    uint64 // a PSN jump beyond this resets sender state
	AllowVariableBlock  bool   // push a partial block on read failure instead of discarding it
	Reorder             bool   // true: write at seq's own offset; false: write at expected offset
}

// AckTokens is the rotating well-known keep-alive payload sent back to
// a sender every AckPeriod packets; its purpose is ARP/NAT keep-alive,
// not reliability (spec.md §4.5 step 4), so its content need only
// rotate, not mean anything to the receiver.
var AckTokens = [...]byte{0x00, 0x01, 0x02, 0x03}

// Sink is where a fully- or partially-filled block goes once the
// receiver is done writing into it, and where it gets a fresh one.
type Sink interface {
	// Push delivers buf (already sliced to its written extent) and
	// reports whether the downstream queue accepted it.
	Push(buf []byte) bool
	// NewBlock returns a fresh zero-filled buffer of exactly
	// Config.BlockSize bytes to write into next.
	NewBlock() []byte
}

// Acker sends a keep-alive datagram back to sender.
type Acker interface {
	Ack(sender string, token byte) error
}

// Receiver reconstructs downstream blocks from a stream of
// sequence-numbered UDP datagrams.
type Receiver struct {
	cfg     Config
	sink    Sink
	acker   Acker
	senders map[string]*SenderState
	order   []string // insertion order, for bounded-map eviction

	cur      []byte
	curWrote int // bytes written into cur so far (high-water mark for partial push)
}

// NewReceiver creates a Receiver. sink.NewBlock is called once
// immediately to obtain the first block to fill.
func NewReceiver(cfg Config, sink Sink, acker Acker) (*Receiver, error) {
	if cfg.ReadSize <= 0 || cfg.WriteSize <= 0 || cfg.ReadSize > cfg.WriteSize {
		return nil, fmt.Errorf("udpseq: invalid read/write size (%d/%d)", cfg.ReadSize, cfg.WriteSize)
	}
	if cfg.BlockSize <= 0 || cfg.BlockSize%cfg.ReadSize != 0 {
		return nil, fmt.Errorf("udpseq: blocksize %d must be a multiple of read_size %d", cfg.BlockSize, cfg.ReadSize)
	}
	r := &Receiver{
		cfg:     cfg,
		sink:    sink,
		acker:   acker,
		senders: make(map[string]*SenderState),
	}
	r.cur = sink.NewBlock()
	return r, nil
}

func (r *Receiver) senderState(addr string) *SenderState {
	if s, ok := r.senders[addr]; ok {
		return s
	}
	if len(r.order) >= MaxSenders {
		evict := r.order[0]
		r.order = r.order[1:]
		delete(r.senders, evict)
	}
	s := &SenderState{}
	r.senders[addr] = s
	r.order = append(r.order, addr)
	return s
}

// Deliver processes one received datagram: seq is the big-endian
// sequence number already decoded from the wire, payload is the
// WriteSize-byte body, sender identifies the source address.
// It returns true if the current block was pushed downstream (and a
// fresh one obtained), matching spec.md §4.5 step 5.
func (r *Receiver) Deliver(sender string, seq uint64, payload []byte) (pushed bool, err error) {
	if len(payload) != r.cfg.WriteSize {
		return false, fmt.Errorf("udpseq: payload length %d != write_size %d", len(payload), r.cfg.WriteSize)
	}
	s := r.senderState(sender)
	track := s.ExpectedSeq
	if r.cfg.Reorder {
		track = s.HighestSeq
	}

	if !s.started {
		*s = SenderState{started: true, FirstSeq: seq, ExpectedSeq: seq, HighestSeq: seq}
	} else if r.cfg.RestartThreshold > 0 && signedGap(seq, track) > int64(r.cfg.RestartThreshold) {
		*s = SenderState{started: true, FirstSeq: seq, ExpectedSeq: seq, HighestSeq: seq}
	}
	s.PktIn++

	var writeSeq uint64
	if r.cfg.Reorder {
		writeSeq = seq
		r.accountReorder(s, seq)
	} else {
		writeSeq = s.ExpectedSeq
		r.accountNoReorder(s, seq)
	}

	if err := r.writeAt(writeSeq, payload); err != nil {
		return false, err
	}

	if s.PktIn-s.LastAckSeq >= r.cfg.AckPeriod && r.cfg.AckPeriod > 0 {
		s.LastAckSeq = s.PktIn
		if r.acker != nil {
			tok := AckTokens[s.PktIn%uint64(len(AckTokens))]
			if ackErr := r.acker.Ack(sender, tok); ackErr != nil && err == nil {
				// Ack failure is advisory (keep-alive, not reliability);
				// log-worthy but not a receive error.
				_ = ackErr
			}
		}
	}

	slotsPerBlock := r.cfg.BlockSize / r.cfg.ReadSize
	slot := int(writeSeq) % slotsPerBlock
	if (slot+1)*r.cfg.ReadSize >= r.cfg.BlockSize || r.curWrote >= r.cfg.BlockSize {
		r.flush(r.cfg.BlockSize)
		return true, nil
	}
	return false, nil
}

// accountNoReorder updates loss/out-of-order counters for the
// no-reorder variant, per spec.md §4.5's literal per-packet steps:
// ExpectedSeq is the next contiguous PSN the receiver expects, and any
// deviation from it is counted as loss (seq ahead) or reordering (seq
// behind) before ExpectedSeq is advanced past whichever PSN arrived.
func (r *Receiver) accountNoReorder(s *SenderState, seq uint64) {
	switch {
	case seq > s.ExpectedSeq:
		s.PktLost += seq - s.ExpectedSeq
	case seq < s.ExpectedSeq:
		s.PktOOO++
		s.OOOSum += s.ExpectedSeq - seq
	}
	if s.ExpectedSeq <= seq {
		s.ExpectedSeq = seq + 1
	}
}

// accountReorder updates loss/out-of-order counters for the reorder
// ("ordered") variant. Unlike the no-reorder variant, a PSN behind the
// high-water mark is not necessarily still missing — it may be filling
// in a gap already counted as lost, so PktLost is given back one when
// that happens. HighestSeq only ever advances forward.
func (r *Receiver) accountReorder(s *SenderState, seq uint64) {
	switch {
	case seq > s.HighestSeq:
		s.PktLost += seq - s.HighestSeq - 1
		s.HighestSeq = seq
	case seq < s.HighestSeq:
		s.PktOOO++
		s.OOOSum += s.HighestSeq - seq
		if s.PktLost > 0 {
			s.PktLost--
		}
	default:
		// seq == HighestSeq: a duplicate of the highest-seen PSN; no
		// loss/ooo bookkeeping, nothing to backfill.
	}
}

// writeAt places payload's read_size-worth of data at writeSeq's
// slot within the current block, zero-filling the write_size-read_size
// gap so a downstream decompressor sees a consistent stride (spec.md
// §4.5's wire-format paragraph).
func (r *Receiver) writeAt(writeSeq uint64, payload []byte) error {
	slotsPerBlock := r.cfg.BlockSize / r.cfg.ReadSize
	slot := int(writeSeq) % slotsPerBlock
	off := slot * r.cfg.ReadSize
	if off+r.cfg.ReadSize > len(r.cur) {
		return fmt.Errorf("udpseq: computed offset %d exceeds block size %d", off, len(r.cur))
	}
	n := copy(r.cur[off:off+r.cfg.ReadSize], payload[:r.cfg.ReadSize])
	if n < r.cfg.ReadSize {
		for i := off + n; i < off+r.cfg.ReadSize; i++ {
			r.cur[i] = 0
		}
	}
	if end := off + r.cfg.ReadSize; end > r.curWrote {
		r.curWrote = end
	}
	return nil
}

// flush pushes the current block (sliced to n bytes) downstream and
// obtains a fresh one.
func (r *Receiver) flush(n int) {
	if n > len(r.cur) {
		n = len(r.cur)
	}
	r.sink.Push(r.cur[:n])
	r.cur = r.sink.NewBlock()
	r.curWrote = 0
}

// HandleReadFailure implements spec.md §4.5's partial-block policy:
// on a read failure with some packets already stored, push the
// partial block if variable block size is allowed, otherwise discard
// it (by simply replacing it with a fresh one).
func (r *Receiver) HandleReadFailure() {
	if r.curWrote > 0 && r.cfg.AllowVariableBlock {
		r.flush(r.curWrote)
		return
	}
	r.cur = r.sink.NewBlock()
	r.curWrote = 0
}

// signedGap returns seq - expected as a signed quantity so a PSN that
// has wrapped backward past expected doesn't look like a huge forward
// jump; used only to detect a restart-sized discontinuity.
func signedGap(seq, expected uint64) int64 {
	if seq >= expected {
		return int64(seq - expected)
	}
	return -int64(expected - seq)
}

// DecodeSeq reads the big-endian u64 sequence number prefixed to a
// datagram (spec.md §4.5's wire format / §9's "big-endian 64-bit
// sequence number").
func DecodeSeq(datagram []byte) (seq uint64, payload []byte, err error) {
	if len(datagram) < 8 {
		return 0, nil, fmt.Errorf("udpseq: datagram too short for sequence number (%d bytes)", len(datagram))
	}
	return binary.BigEndian.Uint64(datagram[:8]), datagram[8:], nil
}

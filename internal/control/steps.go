package control

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"time"

	"github.com/jive-evlbi/chaind/internal/block"
	"github.com/jive-evlbi/chaind/internal/diskarray"
	"github.com/jive-evlbi/chaind/internal/netparams"
	"github.com/jive-evlbi/chaind/internal/step"
	"github.com/jive-evlbi/chaind/internal/udpseq"
)

// Allocator is the minimal block-source contract a producer step needs;
// internal/blockpool.BlockPool satisfies it.
type Allocator interface {
	Get() *block.Block
}

// netReaderStep is a source step reading fixed-size chunks off conn
// into blocks, used by disk2net/fill2net's net-facing half in reverse
// (net2disk/net2file read from the network) — spec.md §6 leaves the
// transport itself to plain sockets; there is no vendor transport
// layer in this stack the way there is a vendor StreamStor SSAPI.
func netReaderStep(conn net.Conn, alloc Allocator, readSize int) step.Fn {
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			default:
			}
			if sy.Cancelled() {
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			}
			nb := alloc.Get()
			buf := nb.Bytes()
			n := readSize
			if n > len(buf) || n <= 0 {
				n = len(buf)
			}
			rn, err := io.ReadFull(conn, buf[:n])
			if rn == 0 || err != nil {
				nb.Release()
				if outq != nil {
					outq.EnablePopOnly()
				}
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					return nil
				}
				return err
			}
			out := nb.Sub(0, rn)
			nb.Release()
			if outq == nil {
				out.Release()
				continue
			}
			if !outq.Push(out) {
				out.Release()
				return nil
			}
		}
	}
}

// netWriterStep is a consumer step writing every block it receives to
// conn, releasing it afterward.
func netWriterStep(conn net.Conn) step.Fn {
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		defer conn.Close()
		for {
			b, ok := inq.Pop()
			if !ok {
				return nil
			}
			_, err := conn.Write(b.Bytes())
			b.Release()
			if err != nil {
				return err
			}
		}
	}
}

// diskReaderStep is a source step reading sequentially from arr
// starting at its current PlayPointer, advancing it by each read's
// size.
func diskReaderStep(arr diskarray.Array, alloc Allocator, readSize int) step.Fn {
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		off := arr.PlayPointer()
		for {
			select {
			case <-ctx.Done():
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			default:
			}
			if sy.Cancelled() || off >= arr.Size() {
				if outq != nil {
					outq.EnablePopOnly()
				}
				arr.SetPlayPointer(off)
				return nil
			}
			nb := alloc.Get()
			buf := nb.Bytes()
			n := readSize
			if n > len(buf) || n <= 0 {
				n = len(buf)
			}
			rn, err := arr.ReadAt(buf[:n], off)
			if rn == 0 || err != nil {
				nb.Release()
				if outq != nil {
					outq.EnablePopOnly()
				}
				arr.SetPlayPointer(off)
				return err
			}
			off += int64(rn)
			out := nb.Sub(0, rn)
			nb.Release()
			if outq == nil {
				out.Release()
				continue
			}
			if !outq.Push(out) {
				out.Release()
				arr.SetPlayPointer(off)
				return nil
			}
		}
	}
}

// diskWriterStep is a consumer step writing every block it receives to
// arr starting at its current RecordPointer.
func diskWriterStep(arr diskarray.Array) step.Fn {
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		off := arr.RecordPointer()
		for {
			b, ok := inq.Pop()
			if !ok {
				return nil
			}
			n, err := arr.WriteAt(b.Bytes(), off)
			off += int64(n)
			b.Release()
			if err != nil {
				return err
			}
		}
	}
}

// fileReaderStep is a source step reading fixed-size chunks from the
// named file.
func fileReaderStep(path string, alloc Allocator, readSize int) step.Fn {
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		f, err := os.Open(path)
		if err != nil {
			if outq != nil {
				outq.EnablePopOnly()
			}
			return err
		}
		defer f.Close()
		for {
			select {
			case <-ctx.Done():
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			default:
			}
			if sy.Cancelled() {
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			}
			nb := alloc.Get()
			buf := nb.Bytes()
			n := readSize
			if n > len(buf) || n <= 0 {
				n = len(buf)
			}
			rn, err := f.Read(buf[:n])
			if rn == 0 || err != nil {
				nb.Release()
				if outq != nil {
					outq.EnablePopOnly()
				}
				if err == io.EOF {
					return nil
				}
				return err
			}
			out := nb.Sub(0, rn)
			nb.Release()
			if outq == nil {
				out.Release()
				continue
			}
			if !outq.Push(out) {
				out.Release()
				return nil
			}
		}
	}
}

// fileWriterStep is a consumer step appending every block it receives
// to the named file, creating or truncating it first.
func fileWriterStep(path string) step.Fn {
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		for {
			b, ok := inq.Pop()
			if !ok {
				return nil
			}
			_, err := f.Write(b.Bytes())
			b.Release()
			if err != nil {
				return err
			}
		}
	}
}

// nullSinkStep is a consumer step that discards every block it
// receives, used where a chain's terminal consumer has no external
// side effect worth modelling (e.g. an unimplemented I/O-board sink).
func nullSinkStep() step.Fn {
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		for {
			b, ok := inq.Pop()
			if !ok {
				return nil
			}
			b.Release()
		}
	}
}

// udpseqSink adapts a step's allocator and outbound queue to
// udpseq.Sink, so a Receiver can fill and push ordinary pool blocks
// without depending on internal/step or internal/block itself.
type udpseqSink struct {
	alloc     Allocator
	outq      *step.BlockQueue
	blockSize int
}

func (s *udpseqSink) NewBlock() []byte { return make([]byte, s.blockSize) }

func (s *udpseqSink) Push(buf []byte) bool {
	nb := s.alloc.Get()
	n := copy(nb.Bytes(), buf)
	out := nb.Sub(0, n)
	nb.Release()
	if s.outq == nil {
		out.Release()
		return true
	}
	if !s.outq.Push(out) {
		out.Release()
		return false
	}
	return true
}

// udpAcker implements udpseq.Acker by writing the keep-alive token back
// to sender on the same socket the receiver is listening on (spec.md
// §4.5 step 4's ARP/NAT keep-alive).
type udpAcker struct{ conn *net.UDPConn }

func (a *udpAcker) Ack(sender string, token byte) error {
	addr, err := net.ResolveUDPAddr("udp", sender)
	if err != nil {
		return err
	}
	_, err = a.conn.WriteToUDP([]byte{token}, addr)
	return err
}

// udpReaderStep is a source step that reconstructs downstream blocks
// from sequence-numbered UDP datagrams via udpseq.Receiver — the
// "udp"/"udps"/"udpsnor" counterpart to netReaderStep, used by
// net2disk/net2file-class handlers when opened with a udp-family
// protocol argument.
func udpReaderStep(conn *net.UDPConn, alloc Allocator, params *netparams.NetworkParams) step.Fn {
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		defer conn.Close()
		sink := &udpseqSink{alloc: alloc, outq: outq, blockSize: params.BlockSize}
		recv, err := udpseq.NewReceiver(udpseq.Config{
			ReadSize:         params.ReadSize,
			WriteSize:        params.WriteSize,
			BlockSize:        params.BlockSize,
			AckPeriod:        params.AckPeriod,
			RestartThreshold: 1 << 20,
			Reorder:          params.Protocol == "udps",
		}, sink, &udpAcker{conn: conn})
		if err != nil {
			if outq != nil {
				outq.EnablePopOnly()
			}
			return err
		}

		buf := make([]byte, 8+params.WriteSize)
		for {
			select {
			case <-ctx.Done():
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			default:
			}
			if sy.Cancelled() {
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			}
			conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				recv.HandleReadFailure()
				if outq != nil {
					outq.EnablePopOnly()
				}
				return err
			}
			seq, payload, err := udpseq.DecodeSeq(buf[:n])
			if err != nil {
				continue
			}
			recv.Deliver(addr.String(), seq, payload)
		}
	}
}

// udpWriterStep is a consumer step that slices each block it receives
// into netparams.Constrain-derived read_size chunks and sends each as
// an 8-byte big-endian PSN followed by a write_size-padded payload —
// the sending half of spec.md §4.5's wire format, used by
// in2net/disk2net/fill2net-class handlers when opened with a udp-family
// protocol argument.
func udpWriterStep(conn *net.UDPConn, params *netparams.NetworkParams) step.Fn {
	pacer := netparams.NewPacer(params.InterPacketGap, 8+params.WriteSize)
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		defer conn.Close()
		var seq uint64
		datagram := make([]byte, 8+params.WriteSize)
		for {
			b, ok := inq.Pop()
			if !ok {
				return nil
			}
			data := b.Bytes()
			for off := 0; off < len(data); off += params.ReadSize {
				end := off + params.ReadSize
				if end > len(data) {
					end = len(data)
				}
				binary.BigEndian.PutUint64(datagram[:8], seq)
				n := copy(datagram[8:8+params.WriteSize], data[off:end])
				for i := 8 + n; i < len(datagram); i++ {
					datagram[i] = 0
				}
				if err := pacer.Wait(ctx); err != nil {
					b.Release()
					return err
				}
				if _, err := conn.Write(datagram); err != nil {
					b.Release()
					return err
				}
				seq++
			}
			b.Release()
		}
	}
}

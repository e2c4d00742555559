package control

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jive-evlbi/chaind/internal/blockpool"
	"github.com/jive-evlbi/chaind/internal/diskarray"
	"github.com/jive-evlbi/chaind/internal/interfaces"
	"github.com/jive-evlbi/chaind/internal/logging"
	"github.com/jive-evlbi/chaind/internal/transfer"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *transfer.Runtime) {
	t.Helper()
	logger := logging.NewLogger(logging.DefaultConfig())
	rt := transfer.New(interfaces.NoOpObserver{}, logger)
	deps := Dependencies{
		Pool:     blockpool.New(4096, 4),
		Disk:     diskarray.NewMemory(1 << 20),
		Observer: interfaces.NoOpObserver{},
		Logger:   logger,
	}
	return NewDispatcher(rt, deps), rt
}

func listenEphemeral(t *testing.T) (*net.TCPListener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	return ln.(*net.TCPListener), port
}

// freeUDPPort finds a currently-unused UDP port by briefly binding one
// and releasing it, the same "bind to :0, read it back, close" trick
// used for TCP elsewhere in this file.
func freeUDPPort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, conn.Close())
	return port
}

// TestModeConflictBusyReply is S3: after in2net opens successfully,
// disk2net is refused with the exact "busy with in2net" wire text.
func TestModeConflictBusyReply(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ln, port := listenEphemeral(t)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()

	resp := d.Dispatch(context.Background(), fmt.Sprintf("in2net = open : 127.0.0.1 : %d ;", port))
	assert.Equal(t, "! in2net = 0 ;", resp)

	resp = d.Dispatch(context.Background(), "disk2net = open ;")
	assert.Equal(t, "! disk2net = 6 : busy with in2net ;", resp)

	resp = d.Dispatch(context.Background(), "close = ;")
	assert.Equal(t, "! close = 0 ;", resp)
}

// TestCloseWhileIdleIsNoOp is R3.
func TestCloseWhileIdleIsNoOp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), "close = ;")
	assert.Equal(t, "! close = 0 ;", resp)
}

func TestModeQueryReportsIdleInitially(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), "mode ? ;")
	assert.Equal(t, "! mode ? 0 : none : none ;", resp)
}

// TestNet2FileQueryReportsInactiveWhenNotRunning is S4's query half.
func TestNet2FileQueryReportsInactiveWhenNotRunning(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), "net2file ? ;")
	assert.Equal(t, "! net2file ? 0 : inactive : 0 ;", resp)
}

func TestUnknownVerbIsNotImplemented(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), "frobnicate = ;")
	assert.Equal(t, "! frobnicate = 2 : no handler for frobnicate ;", resp)
}

// TestDisk2FileOpenBuildsChainAndCloseTearsItDown exercises the
// open/close lifecycle without ever issuing "on": Open only builds the
// chain (spec.md §4.4), so the file is not expected to exist until a
// run actually starts the steps.
func TestDisk2FileOpenBuildsChainAndCloseTearsItDown(t *testing.T) {
	d, rt := newTestDispatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "out.dat")

	resp := d.Dispatch(context.Background(), fmt.Sprintf("disk2file = open : %s ;", path))
	assert.Equal(t, "! disk2file = 0 ;", resp)
	assert.NotNil(t, rt.Chain())

	resp = d.Dispatch(context.Background(), "disk2file = close ;")
	assert.Equal(t, "! disk2file = 0 ;", resp)
	assert.Nil(t, rt.Chain())
}

func TestFill2FileOpenAndCloseRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "fill.dat")

	resp := d.Dispatch(context.Background(), fmt.Sprintf("fill2file = open : %s ;", path))
	assert.Equal(t, "! fill2file = 0 ;", resp)

	resp = d.Dispatch(context.Background(), "fill2file = close ;")
	assert.Equal(t, "! fill2file = 0 ;", resp)
}

func TestParseErrorYieldsParamErrorResponse(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(context.Background(), "garbage-no-separator")
	assert.Contains(t, resp, "8 :")
}

// TestNet2DiskUDPSReconstructsFullBlock exercises net2disk opened with
// a "udps" protocol argument end to end: a real *net.UDPConn feeds four
// PSN-prefixed datagrams through udpseq.Receiver (internal/netparams
// sizing a 4096-byte block into four 1024-byte write_size slots), and
// the reconstructed block should land on the disk array exactly as
// sent once the block fills and diskWriterStep flushes it.
func TestNet2DiskUDPSReconstructsFullBlock(t *testing.T) {
	logger := logging.NewLogger(logging.DefaultConfig())
	rt := transfer.New(interfaces.NoOpObserver{}, logger)
	disk := diskarray.NewMemory(1 << 20)
	deps := Dependencies{
		Pool:     blockpool.New(4096, 4),
		Disk:     disk,
		Observer: interfaces.NoOpObserver{},
		Logger:   logger,
	}
	d := NewDispatcher(rt, deps)

	port := freeUDPPort(t)

	resp := d.Dispatch(context.Background(), fmt.Sprintf("net2disk = open : %d : udps ;", port))
	require.Equal(t, "! net2disk = 0 ;", resp)

	resp = d.Dispatch(context.Background(), "net2disk = on ;")
	require.Equal(t, "! net2disk = 0 ;", resp)

	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	conn, err := net.DialUDP("udp", nil, raddr)
	require.NoError(t, err)
	defer conn.Close()

	const writeSize = 1024
	for seq := uint64(0); seq < 4; seq++ {
		datagram := make([]byte, 8+writeSize)
		binary.BigEndian.PutUint64(datagram[:8], seq)
		for i := range datagram[8:] {
			datagram[8+i] = byte(seq)
		}
		_, err := conn.Write(datagram)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return disk.RecordPointer() >= 4096
	}, 2*time.Second, 10*time.Millisecond)

	got := make([]byte, 4096)
	n, err := disk.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, 4096, n)
	for seq := 0; seq < 4; seq++ {
		want := bytes.Repeat([]byte{byte(seq)}, writeSize)
		assert.Equal(t, want, got[seq*writeSize:(seq+1)*writeSize])
	}

	resp = d.Dispatch(context.Background(), "net2disk = close ;")
	assert.Equal(t, "! net2disk = 0 ;", resp)
}

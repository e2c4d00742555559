package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/jive-evlbi/chaind/internal/blockpool"
	"github.com/jive-evlbi/chaind/internal/chain"
	"github.com/jive-evlbi/chaind/internal/diskarray"
	"github.com/jive-evlbi/chaind/internal/errs"
	"github.com/jive-evlbi/chaind/internal/framer"
	"github.com/jive-evlbi/chaind/internal/interfaces"
	"github.com/jive-evlbi/chaind/internal/netparams"
	"github.com/jive-evlbi/chaind/internal/step"
	"github.com/jive-evlbi/chaind/internal/transfer"
)

// Dependencies bundles the shared resources representative mode
// handlers build chains from: the chain's block pool, the disk array
// stand-in, and the logging/metrics sinks every step is wired to.
type Dependencies struct {
	Pool     *blockpool.BlockPool
	Disk     diskarray.Array
	Observer interfaces.Observer
	Logger   interfaces.Logger
}

// HandlerFunc answers one parsed Command against a Dispatcher.
type HandlerFunc func(ctx context.Context, d *Dispatcher, cmd Command) Response

// Dispatcher holds the verb -> HandlerFunc table bound to one
// transfer.Runtime (spec.md §4.10). It is the parser/dispatch *table*
// spec.md §1 calls an external collaborator; this package supplies a
// representative one, sufficient to realize every mode-related
// testable property in §8 rather than the full ~40-verb table.
type Dispatcher struct {
	rt   *transfer.Runtime
	deps Dependencies

	mu        sync.Mutex
	handlers  map[string]HandlerFunc
	lastError string
}

// NewDispatcher creates a Dispatcher seeded with the representative
// handler set spec.md §4.10 names: in2net, disk2net, net2disk,
// net2file, disk2file, fill2net, fill2file, net2sfxc, mode?, error?,
// close.
func NewDispatcher(rt *transfer.Runtime, deps Dependencies) *Dispatcher {
	d := &Dispatcher{rt: rt, deps: deps, handlers: make(map[string]HandlerFunc)}
	d.seedDefaults()
	return d
}

// Register installs or overrides the handler for verb.
func (d *Dispatcher) Register(verb string, fn HandlerFunc) {
	d.mu.Lock()
	d.handlers[verb] = fn
	d.mu.Unlock()
}

// Dispatch parses line and runs the registered handler for its verb,
// rendering the handler's Response back to wire format. An unparseable
// line or unregistered verb yields CodeParamError/CodeNotImplemented
// respectively rather than a transport-level error: every input the
// control connection delivers gets a response line.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) string {
	cmd, err := Parse(line)
	if err != nil {
		return (Response{Verb: "?", Code: errs.CodeParamError, Text: []string{err.Error()}}).String()
	}

	d.mu.Lock()
	fn, ok := d.handlers[cmd.Verb]
	d.mu.Unlock()
	if !ok {
		return (Response{Verb: cmd.Verb, Query: cmd.Query, Code: errs.CodeNotImplemented,
			Text: []string{"no handler for " + cmd.Verb}}).String()
	}
	return fn(ctx, d, cmd).String()
}

func (d *Dispatcher) recordError(msg string) {
	d.mu.Lock()
	d.lastError = msg
	d.mu.Unlock()
}

func (d *Dispatcher) seedDefaults() {
	d.Register("mode", queryModeHandler)
	d.Register("error", queryErrorHandler)
	d.Register("close", closeHandler)

	d.Register("in2net", newTCPClientModeHandler(transfer.In2Net, "in2net"))
	d.Register("disk2net", newTCPClientModeHandler(transfer.Disk2Net, "disk2net"))
	d.Register("fill2net", newTCPClientModeHandler(transfer.Fill2Net, "fill2net"))

	d.Register("net2disk", newTCPServerDiskModeHandler(transfer.Net2Disk, "net2disk"))
	d.Register("net2file", newTCPServerFileModeHandler(transfer.Net2File, "net2file"))
	d.Register("net2sfxc", newTCPServerFileModeHandler(transfer.Net2Sfxc, "net2sfxc"))

	d.Register("disk2file", newDiskToFileModeHandler())
	d.Register("fill2file", newFillToFileModeHandler())
}

func queryModeHandler(ctx context.Context, d *Dispatcher, cmd Command) Response {
	mode, sub := d.rt.State()
	return Response{Verb: cmd.Verb, Query: true, Code: errs.CodeOK, Text: []string{mode.String(), sub.String()}}
}

func queryErrorHandler(ctx context.Context, d *Dispatcher, cmd Command) Response {
	d.mu.Lock()
	msg := d.lastError
	d.mu.Unlock()
	if msg == "" {
		return Response{Verb: cmd.Verb, Query: true, Code: errs.CodeOK, Text: []string{"no error"}}
	}
	return Response{Verb: cmd.Verb, Query: true, Code: errs.CodeOK, Text: []string{msg}}
}

func closeHandler(ctx context.Context, d *Dispatcher, cmd Command) Response {
	// R3: close while idle is a no-op that still answers OK.
	if err := d.rt.Close(); err != nil {
		d.recordError(err.Error())
		return FromError(cmd.Verb, cmd.Query, err)
	}
	return OK(cmd.Verb, cmd.Query)
}

// modeHandlerAdapter satisfies transfer.Handler by deferring to a
// closure captured at dispatch time (so per-command arguments like
// host/port/path reach Open without widening the Handler interface).
type modeHandlerAdapter struct {
	open func(rt *transfer.Runtime) (*chain.Chain, error)
}

func (a modeHandlerAdapter) Open(rt *transfer.Runtime) (*chain.Chain, error) { return a.open(rt) }

// dispatchLifecycle interprets cmd.Args[0] as the mode's lifecycle
// verb (open/on/pause/close), the shape every representative handler
// below shares.
func dispatchLifecycle(ctx context.Context, d *Dispatcher, cmd Command, mode transfer.Mode, open func(rt *transfer.Runtime) (*chain.Chain, error)) Response {
	if len(cmd.Args) == 0 {
		return Response{Verb: cmd.Verb, Code: errs.CodeParamError, Text: []string{"missing lifecycle action"}}
	}
	switch cmd.Args[0] {
	case "open":
		err := d.rt.Open(mode, modeHandlerAdapter{open: open})
		if err != nil {
			return translateOpenError(cmd.Verb, err)
		}
		return OK(cmd.Verb, false)
	case "on":
		if err := d.rt.On(ctx); err != nil {
			d.recordError(err.Error())
			return FromError(cmd.Verb, false, err)
		}
		return OK(cmd.Verb, false)
	case "pause":
		if err := d.rt.Pause(); err != nil {
			return FromError(cmd.Verb, false, err)
		}
		return OK(cmd.Verb, false)
	case "close", "off":
		if err := d.rt.Close(); err != nil {
			d.recordError(err.Error())
			return FromError(cmd.Verb, false, err)
		}
		return OK(cmd.Verb, false)
	default:
		return Response{Verb: cmd.Verb, Code: errs.CodeParamError, Text: []string{"unknown action " + cmd.Args[0]}}
	}
}

// dispatchModeQuery answers "<verb> ?": "active : <submode>" while the
// runtime is in this verb's mode, "inactive : 0" otherwise (matching
// S4's "! net2file ? 0 : inactive : 0 ;").
func dispatchModeQuery(d *Dispatcher, cmd Command, mode transfer.Mode) Response {
	cur, sub := d.rt.State()
	if cur == mode {
		return Response{Verb: cmd.Verb, Query: true, Code: errs.CodeOK, Text: []string{"active", sub.String()}}
	}
	return Response{Verb: cmd.Verb, Query: true, Code: errs.CodeOK, Text: []string{"inactive", "0"}}
}

func translateOpenError(verb string, err error) Response {
	var busy *transfer.BusyError
	if errors.As(err, &busy) {
		modeErr := errs.NewModeError(verb+".open", busy.Current.String(), errs.CodeConflict,
			fmt.Sprintf("busy with %s", busy.Current))
		return FromError(verb, false, modeErr)
	}
	return FromError(verb, false, errs.WrapError(verb+".open", err))
}

// mkClientSourceStep resolves the producer step for a mode that dials
// out to a remote host:port. in2net stands in for the unimplemented
// live sampler I/O board with a fill-pattern generator (spec.md
// §1/§4.8 name the real I/O board binding out of scope); disk2net
// reads from the disk array; fill2net is the fill generator directly.
func mkClientSourceStep(mode transfer.Mode, deps Dependencies) step.Fn {
	if mode == transfer.Disk2Net {
		return diskReaderStep(deps.Disk, deps.Pool, deps.Pool.BlockSize())
	}
	nword := deps.Pool.BlockSize() / 8
	return framer.NewFillGeneratorStep(framer.FillConfig{Fill: 0x1122334411223344, Inc: 0, NWord: nword}, deps.Pool)
}

// Defaults a representative handler seeds netparams.NetworkParams with
// when a udp-family protocol argument is given: spec.md's actual format-
// negotiation commands (net_protocol=, mode=) are out of this package's
// representative scope, so these stand in for them the same way
// defaultUDPFrameSize stands in for a negotiated DataFormat.
const (
	defaultMTU            = 1500
	defaultSocketBufBytes = 4 << 20
	defaultAckPeriod      = 128
)

// defaultUDPFormat is the DataFormat a udp-family open uses absent a
// format-negotiation command, chosen only to give netparams.Constrain a
// non-trivial read_size/write_size split to derive (spec.md invariant
// I6) rather than to model any particular recorder format.
var defaultUDPFormat = &netparams.DataFormat{Family: "vdif", FrameSize: 1024}

// isUDPFamily reports whether proto names one of spec.md §4.5's three
// UDP-class protocols.
func isUDPFamily(proto string) bool {
	return proto == "udp" || proto == "udps" || proto == "udpsnor"
}

// buildNetworkParams seeds a NetworkParams for proto/blockSize with
// this package's representative defaults, ready for netparams.Constrain.
func buildNetworkParams(proto string, blockSize int) *netparams.NetworkParams {
	return &netparams.NetworkParams{
		Protocol:       proto,
		MTU:            defaultMTU,
		SocketBufBytes: defaultSocketBufBytes,
		BlockSize:      blockSize,
		AckPeriod:      defaultAckPeriod,
	}
}

// protocolArg returns args[idx] if present, defaulting to "tcp" — every
// representative handler's protocol argument is optional and trailing.
func protocolArg(args []string, idx int) string {
	if idx < len(args) && args[idx] != "" {
		return args[idx]
	}
	return "tcp"
}

// listenUDP binds a UDP socket on ":port", the UDP counterpart to
// acceptOnce's TCP net.Listen.
func listenUDP(port string) (*net.UDPConn, error) {
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("control: invalid port %q", port)
	}
	addr, err := net.ResolveUDPAddr("udp", ":"+port)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", addr)
}

// newTCPClientModeHandler builds a handler for a mode that dials out
// (args: host, port, [protocol]) and streams a producer's blocks to
// the connection: in2net/disk2net/fill2net's shape. protocol defaults
// to "tcp"; "udp"/"udps"/"udpsnor" dial a UDP socket instead and send
// each block as a run of PSN-prefixed datagrams sized by
// netparams.Constrain (spec.md §4.5's wire format).
func newTCPClientModeHandler(mode transfer.Mode, verb string) HandlerFunc {
	return func(ctx context.Context, d *Dispatcher, cmd Command) Response {
		if cmd.Query {
			return dispatchModeQuery(d, cmd, mode)
		}
		return dispatchLifecycle(ctx, d, cmd, mode, func(rt *transfer.Runtime) (*chain.Chain, error) {
			args := cmd.Args[1:]
			if len(args) < 2 {
				return nil, fmt.Errorf("%s: open requires host and port", verb)
			}
			proto := protocolArg(args, 2)

			c := chain.New(d.deps.Observer, d.deps.Logger)
			if _, err := c.Add(mkClientSourceStep(mode, d.deps), 1, chain.DefaultQueueCapacity, false, nil); err != nil {
				return nil, err
			}

			switch {
			case proto == "tcp":
				conn, err := net.Dial("tcp", net.JoinHostPort(args[0], args[1]))
				if err != nil {
					return nil, err
				}
				if _, err := c.Add(netWriterStep(conn), 1, 0, true, nil); err != nil {
					conn.Close()
					return nil, err
				}
			case isUDPFamily(proto):
				raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(args[0], args[1]))
				if err != nil {
					return nil, err
				}
				conn, err := net.DialUDP("udp", nil, raddr)
				if err != nil {
					return nil, err
				}
				params := buildNetworkParams(proto, d.deps.Pool.BlockSize())
				if err := netparams.Constrain(params, defaultUDPFormat, nil); err != nil {
					conn.Close()
					return nil, err
				}
				if _, err := c.Add(udpWriterStep(conn, params), 1, 0, true, nil); err != nil {
					conn.Close()
					return nil, err
				}
			default:
				return nil, fmt.Errorf("%s: unknown protocol %q", verb, proto)
			}
			return c, nil
		})
	}
}

// newTCPServerDiskModeHandler builds a handler for a mode that listens
// for one inbound connection (args: port, [protocol]) and drains it
// onto the disk array: net2disk's shape. protocol defaults to "tcp";
// "udp"/"udps"/"udpsnor" bind a UDP socket and reconstruct blocks via
// udpseq.Receiver instead (spec.md §4.5), "udps" enabling its reorder
// variant.
func newTCPServerDiskModeHandler(mode transfer.Mode, verb string) HandlerFunc {
	return func(ctx context.Context, d *Dispatcher, cmd Command) Response {
		if cmd.Query {
			return dispatchModeQuery(d, cmd, mode)
		}
		return dispatchLifecycle(ctx, d, cmd, mode, func(rt *transfer.Runtime) (*chain.Chain, error) {
			args := cmd.Args[1:]
			if len(args) < 1 {
				return nil, fmt.Errorf("%s: open requires a port", verb)
			}
			proto := protocolArg(args, 1)

			c := chain.New(d.deps.Observer, d.deps.Logger)
			switch {
			case proto == "tcp":
				conn, err := acceptOnce(args[0])
				if err != nil {
					return nil, err
				}
				if _, err := c.Add(netReaderStep(conn, d.deps.Pool, d.deps.Pool.BlockSize()), 1, chain.DefaultQueueCapacity, false, nil); err != nil {
					conn.Close()
					return nil, err
				}
			case isUDPFamily(proto):
				conn, err := listenUDP(args[0])
				if err != nil {
					return nil, err
				}
				params := buildNetworkParams(proto, d.deps.Pool.BlockSize())
				if err := netparams.Constrain(params, defaultUDPFormat, nil); err != nil {
					conn.Close()
					return nil, err
				}
				if _, err := c.Add(udpReaderStep(conn, d.deps.Pool, params), 1, chain.DefaultQueueCapacity, false, nil); err != nil {
					conn.Close()
					return nil, err
				}
			default:
				return nil, fmt.Errorf("%s: unknown protocol %q", verb, proto)
			}
			if _, err := c.Add(diskWriterStep(d.deps.Disk), 1, 0, true, nil); err != nil {
				return nil, err
			}
			return c, nil
		})
	}
}

// newTCPServerFileModeHandler builds a handler for a mode that listens
// for one inbound connection (args: port, path) and writes it to a
// file: net2file's shape. net2sfxc reuses this unchanged, since the
// SFXC-specific output framing itself remains an external collaborator
// (spec.md §1) — this models the opaque service the same way
// diskarray.NewUnimplementedIOBoard does, rather than parsing SFXC's
// format.
func newTCPServerFileModeHandler(mode transfer.Mode, verb string) HandlerFunc {
	return func(ctx context.Context, d *Dispatcher, cmd Command) Response {
		if cmd.Query {
			return dispatchModeQuery(d, cmd, mode)
		}
		return dispatchLifecycle(ctx, d, cmd, mode, func(rt *transfer.Runtime) (*chain.Chain, error) {
			args := cmd.Args[1:]
			if len(args) < 2 {
				return nil, fmt.Errorf("%s: open requires a port and a file path", verb)
			}
			conn, err := acceptOnce(args[0])
			if err != nil {
				return nil, err
			}
			c := chain.New(d.deps.Observer, d.deps.Logger)
			if _, err := c.Add(netReaderStep(conn, d.deps.Pool, d.deps.Pool.BlockSize()), 1, chain.DefaultQueueCapacity, false, nil); err != nil {
				conn.Close()
				return nil, err
			}
			if _, err := c.Add(fileWriterStep(args[1]), 1, 0, true, nil); err != nil {
				conn.Close()
				return nil, err
			}
			return c, nil
		})
	}
}

// newDiskToFileModeHandler builds disk2file (args: path), exercised by
// R2's disk2file -> file2disk round-trip.
func newDiskToFileModeHandler() HandlerFunc {
	return func(ctx context.Context, d *Dispatcher, cmd Command) Response {
		if cmd.Query {
			return dispatchModeQuery(d, cmd, transfer.Disk2File)
		}
		return dispatchLifecycle(ctx, d, cmd, transfer.Disk2File, func(rt *transfer.Runtime) (*chain.Chain, error) {
			args := cmd.Args[1:]
			if len(args) < 1 {
				return nil, fmt.Errorf("disk2file: open requires a file path")
			}
			c := chain.New(d.deps.Observer, d.deps.Logger)
			if _, err := c.Add(diskReaderStep(d.deps.Disk, d.deps.Pool, d.deps.Pool.BlockSize()), 1, chain.DefaultQueueCapacity, false, nil); err != nil {
				return nil, err
			}
			if _, err := c.Add(fileWriterStep(args[0]), 1, 0, true, nil); err != nil {
				return nil, err
			}
			return c, nil
		})
	}
}

// newFillToFileModeHandler builds fill2file (args: path).
func newFillToFileModeHandler() HandlerFunc {
	return func(ctx context.Context, d *Dispatcher, cmd Command) Response {
		if cmd.Query {
			return dispatchModeQuery(d, cmd, transfer.Fill2File)
		}
		return dispatchLifecycle(ctx, d, cmd, transfer.Fill2File, func(rt *transfer.Runtime) (*chain.Chain, error) {
			args := cmd.Args[1:]
			if len(args) < 1 {
				return nil, fmt.Errorf("fill2file: open requires a file path")
			}
			c := chain.New(d.deps.Observer, d.deps.Logger)
			nword := d.deps.Pool.BlockSize() / 8
			fillStep := framer.NewFillGeneratorStep(framer.FillConfig{Fill: 0x1122334411223344, Inc: 0, NWord: nword}, d.deps.Pool)
			if _, err := c.Add(fillStep, 1, chain.DefaultQueueCapacity, false, nil); err != nil {
				return nil, err
			}
			if _, err := c.Add(fileWriterStep(args[0]), 1, 0, true, nil); err != nil {
				return nil, err
			}
			return c, nil
		})
	}
}

// acceptOnce listens on ":port" and returns the first accepted
// connection, closing the listener immediately afterward — every
// representative server mode here accepts exactly one peer per open,
// matching the original's one-transfer-one-connection model.
func acceptOnce(port string) (net.Conn, error) {
	if _, err := strconv.Atoi(port); err != nil {
		return nil, fmt.Errorf("control: invalid port %q", port)
	}
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	return ln.Accept()
}

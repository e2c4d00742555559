package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jive-evlbi/chaind"
	"github.com/jive-evlbi/chaind/internal/config"
	"github.com/jive-evlbi/chaind/internal/logging"
)

func main() {
	var (
		tcpAddr = flag.String("tcp-addr", "", "control protocol listen address (overrides the address from the environment config)")
		verbose = flag.Bool("v", false, "verbose (debug-level) logging")
	)
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *tcpAddr != "" {
		cfg.Control.TCPAddr = *tcpAddr
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	logger := logging.NewLogger(levelFromConfig(cfg))
	logging.SetDefault(logger)

	rt := chaind.NewRuntime(cfg)

	ln, err := net.Listen("tcp", cfg.Control.TCPAddr)
	if err != nil {
		logger.Error("failed to open control listener", "addr", cfg.Control.TCPAddr, "error", err)
		os.Exit(1)
	}
	logger.Info("control listener open", "addr", cfg.Control.TCPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
		ln.Close()
	}()

	serve(ctx, ln, rt, logger)

	cleanupDone := make(chan struct{})
	go func() {
		if err := rt.Close(); err != nil {
			logger.Error("error closing runtime", "error", err)
		}
		close(cleanupDone)
	}()
	select {
	case <-cleanupDone:
	case <-time.After(1 * time.Second):
		logger.Info("cleanup timeout, forcing exit")
	}
}

// serve accepts control connections one at a time: spec.md §3 describes
// a Runtime as "one per control connection, typically one per process",
// and the representative dispatcher wired into chaind.Runtime carries
// exactly one transfer.Runtime's worth of mode state, so a second
// connection is handled only once the first disconnects.
func serve(ctx context.Context, ln net.Listener, rt *chaind.Runtime, logger *logging.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			logger.Error("accept failed", "error", err)
			return
		}
		logger.Info("control connection opened", "remote", conn.RemoteAddr())
		handleConn(ctx, conn, rt, logger)
		logger.Info("control connection closed", "remote", conn.RemoteAddr())
	}
}

// handleConn runs the line protocol (spec.md §6) over conn until the
// peer disconnects or ctx is cancelled: one request line in, one "!
// verb = code ... ;" reply line out.
func handleConn(ctx context.Context, conn net.Conn, rt *chaind.Runtime, logger *logging.Logger) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		reply := rt.Dispatch(ctx, line)
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			logger.Warn("failed to write control reply", "error", err)
			return
		}
	}
}

func levelFromConfig(cfg *config.Config) *logging.Config {
	lvl := logging.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		lvl = logging.LevelDebug
	case "warn":
		lvl = logging.LevelWarn
	case "error":
		lvl = logging.LevelError
	}
	return &logging.Config{Level: lvl, Development: cfg.Logging.Development}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/decred/slog"

	"github.com/aarika/x402-arena/arena"
	"github.com/aarika/x402-arena/events"
	"github.com/aarika/x402-arena/evm"
	"github.com/aarika/x402-arena/grpc"
)

var (
	logBackend = slog.NewBackend(os.Stderr)

	arenaLog = logBackend.Logger("ARNA")
	eventLog = logBackend.Logger("EVNT")
	evmLog   = logBackend.Logger("EVM ")
	grpcLog  = logBackend.Logger("GRPC")

	// ctlLog reports command failures and is not affected by --debuglevel.
	ctlLog = logBackend.Logger("CTL ")
)

// subsystemLoggers maps each subsystem identifier to its logger.
var subsystemLoggers = map[string]slog.Logger{
	"ARNA": arenaLog,
	"EVNT": eventLog,
	"EVM ": evmLog,
	"GRPC": grpcLog,
}

func init() {
	arena.UseLogger(arenaLog)
	events.UseLogger(eventLog)
	evm.UseLogger(evmLog)
	grpc.UseLogger(grpcLog)
}

// signalContext is cancelled on interrupt, which dismisses the running
// action.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

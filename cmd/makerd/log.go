package main

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/fidelity"
	"github.com/citadel-tech/coinswap-go/maker"
	"github.com/citadel-tech/coinswap-go/offerbook"
	"github.com/citadel-tech/coinswap-go/recovery"
)

// backendLog is the single btclog backend every package logger writes
// through, grounded on breez-lightninglib/daemon/log.go's
// backendLog/subsystem-logger split (minus its log-rotator and the
// subsystems this module doesn't have).
var backendLog = btclog.NewBackend(os.Stdout)

func useLoggers() {
	maker.UseLogger(backendLog.Logger("MAKR"))
	chainrpc.UseLogger(backendLog.Logger("CHRP"))
	offerbook.UseLogger(backendLog.Logger("OFBK"))
	fidelity.UseLogger(backendLog.Logger("FDLT"))
	recovery.UseLogger(backendLog.Logger("RCVR"))
}

package main

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/citadel-tech/coinswap-go/chainrpc"
	"github.com/citadel-tech/coinswap-go/fidelity"
	"github.com/citadel-tech/coinswap-go/offerbook"
	"github.com/citadel-tech/coinswap-go/recovery"
	"github.com/citadel-tech/coinswap-go/taker"
)

var backendLog = btclog.NewBackend(os.Stdout)

var log = backendLog.Logger("TAKD")

func useLoggers() {
	taker.UseLogger(backendLog.Logger("TAKR"))
	chainrpc.UseLogger(backendLog.Logger("CHRP"))
	offerbook.UseLogger(backendLog.Logger("OFBK"))
	fidelity.UseLogger(backendLog.Logger("FDLT"))
	recovery.UseLogger(backendLog.Logger("RCVR"))
}

// Command coinswap-cli is a thin operator client for a running takerd: it
// posts a swap request to takerd's local control API and prints the
// result.
//
// Grounded on the teacher's cmd/lncli, which wraps an lnrpc gRPC client in
// an urfave/cli app -- the same CLI framework, but talking to takerd's
// plain-HTTP control endpoint instead of a gRPC server, since the gRPC/
// REST control plane is explicitly out of scope here (SPEC_FULL.md
// Non-goals).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "coinswap-cli"
	app.Usage = "control a running takerd"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:7170",
			Usage: "takerd control API host:port",
		},
	}
	app.Commands = []cli.Command{
		swapCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[coinswap-cli] %v\n", err)
	os.Exit(1)
}

var swapCommand = cli.Command{
	Name:      "swap",
	Usage:     "take a coinswap of the given amount",
	ArgsUsage: "amount_sat",
	Action:    runSwap,
}

func runSwap(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "swap")
	}
	var amount int64
	if _, err := fmt.Sscanf(ctx.Args().Get(0), "%d", &amount); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	reqBody, err := json.Marshal(struct {
		AmountSat int64 `json:"amount_sat"`
	}{AmountSat: amount})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/swap", ctx.GlobalString("rpcserver"))
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Post(url, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("contacting takerd: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result struct {
		SwapID   string   `json:"swap_id"`
		Preimage string   `json:"preimage"`
		Hops     []string `json:"hops"`
		Error    string   `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decoding takerd response: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("swap failed: %s", result.Error)
	}

	fmt.Printf("swap %s complete via %v\npreimage: %s\n", result.SwapID, result.Hops, result.Preimage)
	return nil
}

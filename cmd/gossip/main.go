// Command gossip runs a single peer-to-peer gossip mesh node: it listens
// for and dials mutually authenticated QUIC connections, joins a mesh
// through one bootstrap peer via recursive discovery, and — if a period
// is given — periodically broadcasts a random message to every peer it is
// currently connected to.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/urfave/cli"

	"github.com/lincot/p2p-gossip/cmd/utils"
	"github.com/lincot/p2p-gossip/logger"
	"github.com/lincot/p2p-gossip/p2p"
	"github.com/lincot/p2p-gossip/tlsconfig"
)

const version = "0.1.0"

func main() {
	app := utils.NewApp(version, "P2P gossip peer.")
	app.Flags = []cli.Flag{
		utils.PortFlag,
		utils.IPFlag,
		utils.ConnectFlag,
		utils.PeriodFlag,
		utils.SkipServerVerificationFlag,
		utils.CertFlag,
		utils.KeyFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cliCtx *cli.Context) error {
	port := cliCtx.Int(utils.PortFlag.Name)
	if port == 0 {
		return fmt.Errorf("-%s is required", utils.PortFlag.Name)
	}

	localAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cliCtx.String(utils.IPFlag.Name), port))
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}

	serverTLS, clientTLS, err := tlsconfig.Load(
		cliCtx.String(utils.CertFlag.Name),
		cliCtx.String(utils.KeyFlag.Name),
		cliCtx.Bool(utils.SkipServerVerificationFlag.Name),
	)
	if err != nil {
		return fmt.Errorf("loading TLS materials: %w", err)
	}

	mgr, err := p2p.NewManager(localAddr, serverTLS, clientTLS, &quic.Config{})
	if err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}

	logger.Logf("My address is %q", mgr.LocalAddr().String())

	runCtx, cancel := context.WithCancel(context.Background())

	if connect := cliCtx.String(utils.ConnectFlag.Name); connect != "" {
		bootstrapAddr, err := net.ResolveUDPAddr("udp", connect)
		if err != nil {
			cancel()
			return fmt.Errorf("resolving bootstrap address: %w", err)
		}
		mgr.Bootstrap(runCtx, bootstrapAddr)
	}

	if period := cliCtx.Int(utils.PeriodFlag.Name); period > 0 {
		go mgr.RunGossip(runCtx, time.Duration(period)*time.Second)
	}

	go waitForShutdown(cancel, mgr)

	mgr.Run(runCtx)
	return nil
}

// waitForShutdown blocks until SIGINT, then closes the node down
// gracefully (spec.md §4.8): log, cancel every background task, close
// the transport, wait for the connection tasks to finish, exit clean.
func waitForShutdown(cancel context.CancelFunc, mgr *p2p.Manager) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	logger.Log("Shutting down")
	cancel()
	mgr.Shutdown()
	os.Exit(0)
}

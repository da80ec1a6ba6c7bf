// Command tunnelproxy runs a peer-to-peer SOCKS5 tunnel: a local SOCKS5
// proxy whose CONNECT requests are relayed over a persistent, mutually
// authenticated peer connection to a remote node that performs the actual
// outbound TCP dial.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/drep-project/tunnel/p2p"
	"github.com/drep-project/tunnel/tunnel"
)

func main() {
	app := &cli.App{
		Name:  "tunnelproxy",
		Usage: "peer-to-peer SOCKS5 tunnel proxy",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   1080,
				Usage:   "local SOCKS5 proxy port",
			},
			&cli.StringFlag{
				Name:    "peer",
				Aliases: []string{"c"},
				Usage:   "remote peer public key to connect to (client mode)",
			},
			&cli.StringFlag{
				Name:    "log-file",
				Aliases: []string{"l"},
				Usage:   "append structured logs to this file, in addition to stderr",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	log, err := tunnel.NewLogger(c.String("log-file"))
	if err != nil {
		return err
	}

	cfg := tunnel.Config{
		SocksPort: c.Int("port"),
		Log:       log,
	}

	if ticket := c.String("peer"); ticket != "" {
		remote, err := p2p.ParsePublicKey(ticket)
		if err != nil {
			return fmt.Errorf("tunnelproxy: invalid peer ticket: %w", err)
		}
		cfg.Peer = remote
		cfg.HasPeer = true
	}

	// Server mode persists its identity so a known peer can reconnect to
	// the same public key across restarts. Client mode's identity is
	// ephemeral: it is the dialer, not the one being found.
	cfg.PersistIdentity = !cfg.HasPeer

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := tunnel.Run(ctx, cfg); err != nil {
		return fmt.Errorf("tunnelproxy: %w", err)
	}
	return nil
}

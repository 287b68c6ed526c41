// Package utils holds the flag definitions and app scaffolding shared by
// this project's command-line entrypoint, in the same spirit as the
// teacher's cmd/utils package: flags are declared once, by name, so their
// help text stays identical wherever they are used.
package utils

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli"
)

func init() {
	cli.AppHelpTemplate = `{{.Name}} {{if .Flags}}[global options]{{end}}

VERSION:
   {{.Version}}

GLOBAL OPTIONS:
   {{range .Flags}}{{.}}
   {{end}}
`
}

// NewApp creates an app with sane defaults.
func NewApp(version, usage string) *cli.App {
	app := cli.NewApp()
	app.Name = filepath.Base(os.Args[0])
	app.Author = ""
	app.Email = ""
	app.Version = version
	app.Usage = usage
	return app
}

// These are all the command line flags the node supports.
var (
	PortFlag = cli.IntFlag{
		Name:  "port",
		Usage: "UDP port to listen and dial from",
	}
	IPFlag = cli.StringFlag{
		Name:  "ip",
		Value: "127.0.0.1",
		Usage: "IP address to listen and dial from",
	}
	ConnectFlag = cli.StringFlag{
		Name:  "connect",
		Usage: "address (ip:port) of a bootstrap peer to join through",
	}
	PeriodFlag = cli.IntFlag{
		Name:  "period",
		Usage: "period in seconds, once in this period a random message is sent to all peers",
	}
	SkipServerVerificationFlag = cli.BoolFlag{
		Name:  "skip-server-verification",
		Usage: "accept any peer certificate without validation (development only)",
	}
	CertFlag = cli.StringFlag{
		Name:  "cert",
		Value: "cert.pem",
		Usage: "path to this node's TLS certificate",
	}
	KeyFlag = cli.StringFlag{
		Name:  "key",
		Value: "key.pem",
		Usage: "path to this node's TLS private key",
	}
)

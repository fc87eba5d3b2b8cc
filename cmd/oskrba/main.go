// Command oskrba runs the state blob server and a command-line client for
// the supply inventory.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/erazemk/oskrba/internal/config"
)

const usage = `Usage: oskrba [-env <path>] <command> [flags]

Commands:
  serve     run the state blob server
  login     sign in and remember the session
  logout    forget the session
  status    show sync status and low-stock items
  adjust    set an item's stock level
  passwd    change the signed-in user's password
  request   list requests or change a request's status
  watch     print changes made by other clients
  reset     replace the stored state with the default data
  token     issue a bearer token for the blob API

Settings are read from the environment (OSKRBA_*) and the -env file.
Run 'oskrba <command> -h' for command flags.
`

type command func(cfg config.Config, args []string) error

var commands = map[string]command{
	"serve":   cmdServe,
	"login":   cmdLogin,
	"logout":  cmdLogout,
	"status":  cmdStatus,
	"adjust":  cmdAdjust,
	"passwd":  cmdPasswd,
	"request": cmdRequest,
	"watch":   cmdWatch,
	"reset":   cmdReset,
	"token":   cmdToken,
}

func main() {
	fs := flag.NewFlagSet("oskrba", flag.ContinueOnError)
	envFile := fs.String("env", ".env", "")
	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", name)
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelWarn
	if name == "serve" || name == "watch" {
		level = slog.LevelInfo
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}
	closeLog, err := setupLogger(cfg.LogPath, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	err = cmd(cfg, fs.Args()[1:])
	closeLog()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

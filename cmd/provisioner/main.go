package main

import (
	"fmt"
	"log/slog"
	"os"
)

var AppVersion string

const usage = `usage: provisioner <command> [flags]

commands:
  run     provision the batches in the input workbook (default)
  serve   expose the run API over HTTP
`

func main() {
	InitConfig()
	defer closeLogger()

	slog.Info("Silo Provisioner", "version", AppVersion)

	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runProvision(args)
	case "serve":
		err = runServe(args)
	case "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		closeLogger()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("Command failed", "command", cmd, "error", err)
		closeLogger()
		os.Exit(1)
	}
}

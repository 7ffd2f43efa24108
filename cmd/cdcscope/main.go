package main

import (
	"fmt"
	"os"

	"github.com/cdcscope/cdcscope/internal/cli"
)

const usage = `cdcscope - CDC consumption monitor

Usage:
  cdcscope <command> [arguments]

Commands:
  watch     Monitor CDC consumption on a transport (kafka, redis, nats)
  serve     Run the webhook receiver for push-delivered CDC events
  version   Print build information

Run 'cdcscope <command> -h' for help on a specific command.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		return nil
	}

	switch os.Args[1] {
	case "watch":
		return cli.RunWatch(os.Args[2:])
	case "serve":
		return cli.RunServe(os.Args[2:])
	case "version":
		return cli.RunVersion(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\nRun 'cdcscope help' for usage", os.Args[1])
	}
}

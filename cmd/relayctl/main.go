// Command relayctl inspects and talks to a running relay.
//
//	relayctl stats
//	relayctl chat -room 1 -sender alice
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: relayctl stats | chat -room <id> -sender <name>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch args[0] {
	case "stats":
		stats, err := fetchStats(ctx, cfg.RelayURL)
		if err != nil {
			return err
		}
		renderStats(os.Stdout, stats)
		return nil
	case "chat":
		fs := flag.NewFlagSet("chat", flag.ContinueOnError)
		room := fs.Int64("room", 1, "Room to enter")
		sender := fs.String("sender", "relayctl", "Sender id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return chat(ctx, cfg, *room, *sender, os.Stdin, os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

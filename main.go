// Package main is the entry point for the guardian telemetry hub.
package main

import (
	"context"
	"fmt"
	"os"

	"guardian/bootstrap"
	"guardian/cmd"
)

// run initializes and starts the telemetry hub daemon.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()

	return nil
}

// main dispatches the one-shot subcommands and otherwise runs the daemon.
func main() {
	if len(os.Args) > 1 {
		var sub func() error
		switch os.Args[1] {
		case "graph":
			sub = func() error {
				os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
				return cmd.NewGraphCmd().Execute()
			}
		case "seed":
			sub = func() error {
				os.Args = append([]string{os.Args[0]}, os.Args[2:]...)
				return cmd.NewSeedCmd().Execute()
			}
		}
		if sub != nil {
			if err := sub(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

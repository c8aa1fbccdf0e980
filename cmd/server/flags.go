package main

import (
	"flag"
	"fmt"

	"github.com/Tyrowin/pollchat/internal/server"
)

// applyFlags overrides environment configuration with command-line flags.
func applyFlags(cfg *server.Config, args []string) error {
	fs := flag.NewFlagSet("gochat", flag.ContinueOnError)
	port := fs.Int("port", 0, "run on the given port (overrides SERVER_PORT)")
	debug := fs.Bool("debug", false, "run in development mode with debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *port > 0 {
		cfg.Port = fmt.Sprintf(":%d", *port)
	}
	if *debug {
		cfg.Env = "development"
		cfg.LogLevel = "debug"
	}
	return nil
}

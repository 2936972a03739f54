package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/kolkov/rescell/internal/cell/config"
	"github.com/kolkov/rescell/res"
)

// infoCommand implements 'rescell info [-config file]'.
func infoCommand(args []string) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	configPath := fs.String("config", "", "diagnostics config file (JSON)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := applyConfig(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := printInfo(os.Stdout, res.CurrentConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

//nolint:errcheck // Error handling omitted for stdout output formatting
func printInfo(w io.Writer, cfg res.Config) error {
	info := res.GetInfo()

	encoded, err := config.Marshal(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Version:   %s\n", info.Version)
	fmt.Fprintf(w, "Strategy:  %s\n", info.Strategy)
	fmt.Fprintf(w, "Blocking:  %v\n", info.Blocking)
	fmt.Fprintf(w, "Config:    %s\n", encoded)
	return nil
}

// applyConfig loads path, if set, and installs it for cells created
// afterwards.
func applyConfig(path string) error {
	if path == "" {
		return nil
	}
	cfg, err := res.LoadConfig(path)
	if err != nil {
		return err
	}
	res.Configure(cfg)
	return nil
}

// Package main implements the rescell CLI tool.
//
// The tool exercises the cell strategy the binary was built with and
// prints what it was built with:
//
//	rescell stress -goroutines 8 -ops 100000   # Hammer one cell
//	rescell info                               # Strategy and diagnostics
//	rescell version                            # Library version
//
// Build with -tags rescell_sync to exercise the cross-goroutine strategy.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dc0d/onexit"

	"github.com/kolkov/rescell/res"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("rescell: ")

	if len(os.Args) < 2 {
		printUsage()
		onexit.ForceExit(1)
	}

	command := os.Args[1]

	switch command {
	case "stress":
		onexit.ForceExit(stressCommand(os.Args[2:]))
	case "info":
		onexit.ForceExit(infoCommand(os.Args[2:]))
	case "version", "--version", "-v":
		fmt.Printf("rescell version %s\n", res.GetInfo().Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		onexit.ForceExit(1)
	}
	onexit.ForceExit(0)
}

func printUsage() {
	fmt.Print(`rescell - shareable resource cells

USAGE:
    rescell <command> [arguments]

COMMANDS:
    stress     Hammer one cell with reads and writes
    info       Show the compiled strategy and diagnostics options
    version    Show version information
    help       Show this help message

EXAMPLES:
    # Single-owner strategy (default build)
    rescell stress -ops 1000000

    # Cross-goroutine strategy
    go build -tags rescell_sync ./cmd/rescell
    rescell stress -goroutines 16 -ops 1000000 -writes 20

    # Diagnostics from a config file
    rescell stress -config rescell.json
    RESCELL_CONFIG=rescell.json rescell info

`)
}

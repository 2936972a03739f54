// Package config holds the process-wide diagnostics options for cells.
//
// Options only affect diagnostics; the borrow rules are the same with every
// combination. Cells snapshot the options when they are created, so changing
// the configuration affects cells created afterwards.
//
// Sources, in order:
//  1. Built-in defaults (Default)
//  2. A JSON file named by the RESCELL_CONFIG environment variable, read
//     once on first use
//  3. Set, which replaces the snapshot outright
//
// Example file:
//
//	{
//	  "trackBorrows": true,
//	  "checkOwner": true,
//	  "leakReport": true,
//	  "reportConflicts": true
//	}
package config

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "RESCELL_CONFIG"

// Config is the set of diagnostics options.
type Config struct {
	// TrackBorrows records goroutine and stack for every live guard so
	// conflict and wait errors can name the guard in the way.
	TrackBorrows bool `koanf:"trackBorrows"`

	// CheckOwner pins single-owner cells to the goroutine that created
	// them. Ignored by the cross-goroutine strategy.
	CheckOwner bool `koanf:"checkOwner"`

	// LeakReport reports cells that were never fully released at exit.
	LeakReport bool `koanf:"leakReport"`

	// ReportConflicts prints the full conflict report before panicking.
	ReportConflicts bool `koanf:"reportConflicts"`
}

// Default returns the built-in options: every diagnostic off.
func Default() Config {
	return Config{}
}

// Load reads options from a JSON file on top of the defaults.
//
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	defaults := Default()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return c, nil
}

// FromEnv loads the file named by RESCELL_CONFIG, or the defaults if unset.
func FromEnv() (Config, error) {
	return Load(os.Getenv(EnvVar))
}

// Marshal renders c as JSON.
func Marshal(c Config) ([]byte, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(&c, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return k.Marshal(json.Parser())
}

var (
	current  atomic.Pointer[Config]
	initOnce sync.Once

	output atomic.Pointer[writerBox]
)

type writerBox struct{ w io.Writer }

func initFromEnv() {
	c, err := FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "rescell: %v (using defaults)\n", err)
		c = Default()
	}
	current.CompareAndSwap(nil, &c)
}

// Current returns the active options.
//
// Thread Safety: Safe for concurrent calls; readers never block.
func Current() Config {
	initOnce.Do(initFromEnv)
	return *current.Load()
}

// Set replaces the active options.
func Set(c Config) {
	initOnce.Do(func() {})
	current.Store(&c)
}

// Output returns the writer reports are printed to (default os.Stderr).
func Output() io.Writer {
	if b := output.Load(); b != nil {
		return b.w
	}
	return os.Stderr
}

// SetOutput redirects reports. A nil writer restores os.Stderr.
func SetOutput(w io.Writer) {
	if w == nil {
		output.Store(nil)
		return
	}
	output.Store(&writerBox{w: w})
}

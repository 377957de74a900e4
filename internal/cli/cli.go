package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// CLIArgs are the command-line overrides for the API server. Empty or zero
// fields leave the loaded configuration alone.
type CLIArgs struct {
	Addr        string
	StorageRoot string
	// Backend selects the webclient backend used for session documents.
	Backend     string
	Classifier  string
	ModelURL    string
	RedisAddr   string
	Profile     string
	LogLevel    string
	Concurrency int

	// EnvFile is the .env file to load before applying flags.
	EnvFile string

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("cleanweb", flag.ContinueOnError)
	var out CLIArgs
	fs.StringVar(&out.Addr, "addr", "", "HTTP listen address, e.g. :8080")
	fs.StringVar(&out.StorageRoot, "storage", "", "Directory holding the settings database")
	fs.StringVar(&out.Backend, "backend", "", "Page fetch backend: nethttp|chromedp")
	fs.StringVar(&out.Classifier, "classifier", "", "Default classifier name")
	fs.StringVar(&out.ModelURL, "model-url", "", "Inference service URL enabling the model classifier")
	fs.StringVar(&out.RedisAddr, "redis", "", "Redis address for the result cache")
	fs.StringVar(&out.Profile, "profile", "", "Default settings profile")
	fs.StringVar(&out.LogLevel, "log-level", "", "debug|info|warn|error")
	fs.IntVar(&out.Concurrency, "concurrency", 0, "Classifications in flight per batch (0=use config)")
	fs.StringVar(&out.EnvFile, "env", ".env", "Path of the .env file to load")

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if out.Concurrency < 0 {
		return nil, fmt.Errorf("-concurrency must not be negative")
	}
	if out.Backend != "" {
		switch strings.ToLower(out.Backend) {
		case "nethttp", "chromedp":
		default:
			return nil, fmt.Errorf("unknown -backend %q", out.Backend)
		}
	}
	out.RawArgs = args
	return &out, nil
}

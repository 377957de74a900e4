package cli_test

import (
	"testing"

	"github.com/raysh454/cleanweb/internal/cli"
)

func TestParseArgs_Defaults(t *testing.T) {
	t.Parallel()
	args, err := cli.ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if args.Addr != "" || args.Concurrency != 0 || args.Backend != "" {
		t.Errorf("expected empty overrides, got %+v", args)
	}
	if args.EnvFile != ".env" {
		t.Errorf("EnvFile = %q", args.EnvFile)
	}
}

func TestParseArgs_Overrides(t *testing.T) {
	t.Parallel()
	raw := []string{"-addr", ":9999", "-backend", "chromedp", "-classifier", "model", "-concurrency", "3", "-profile", "kids"}
	args, err := cli.ParseArgs(raw)
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if args.Addr != ":9999" || args.Backend != "chromedp" || args.Classifier != "model" || args.Concurrency != 3 || args.Profile != "kids" {
		t.Errorf("unexpected args: %+v", args)
	}
	if len(args.RawArgs) != len(raw) {
		t.Errorf("RawArgs = %v", args.RawArgs)
	}
}

func TestParseArgs_Rejects(t *testing.T) {
	t.Parallel()
	cases := map[string][]string{
		"unknown flag":     {"-nope"},
		"negative workers": {"-concurrency", "-1"},
		"bad backend":      {"-backend", "curl"},
		"positional":       {"extra"},
	}
	for name, raw := range cases {
		if _, err := cli.ParseArgs(raw); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/provisr-dev/provisr/internal/config"
	"github.com/provisr-dev/provisr/internal/probe"
	"github.com/provisr-dev/provisr/internal/provision"
	"github.com/provisr-dev/provisr/internal/secret"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "primary":
		err = run(provision.RolePrimary, os.Args[2:])
	case "worker":
		err = run(provision.RoleWorker, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(role provision.Role, args []string) error {
	fs := flag.NewFlagSet(role.String(), flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	secretFile := fs.String("secret-file", "", "Read the cluster secret from this file instead of prompting (primary only)")
	textual := fs.Bool("textual-patch", false, "Patch config via line substitution instead of structured JSON rewrite")
	manifestPath := fs.String("manifest", config.DefaultPath, "Provisioner manifest path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	manifest, err := config.Load(*manifestPath)
	if err != nil {
		return err
	}

	profile, err := probe.Probe(os.Stdout)
	if err != nil {
		return err
	}

	// Collect the secret before any system mutation so a rejected prompt
	// leaves the host untouched.
	var clusterSecret string
	if role == provision.RolePrimary {
		if *secretFile != "" {
			clusterSecret, err = secret.FromFile(*secretFile)
		} else {
			clusterSecret, err = secret.Prompt()
		}
		if err != nil {
			return err
		}
	}

	p := &provision.Provisioner{
		Profile:  profile,
		Manifest: manifest,
		Role:     role,
		Secret:   clusterSecret,
		Opts:     provision.Options{TextualPatch: *textual},
		Log:      os.Stdout,
	}
	return p.Run(context.Background())
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: provisr <primary|worker> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  primary    Provision this host as the cluster primary (runs first-time setup)")
	fmt.Fprintln(os.Stderr, "  worker     Provision this host as a worker (requires the primary's config pre-copied)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags:")
	fmt.Fprintln(os.Stderr, "  --secret-file <path>   Non-interactive cluster secret (primary only)")
	fmt.Fprintln(os.Stderr, "  --textual-patch        Use line-substitution config patching (fallback)")
	fmt.Fprintln(os.Stderr, "  --manifest <path>      Manifest location (default "+config.DefaultPath+")")
}

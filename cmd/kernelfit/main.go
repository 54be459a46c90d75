// Command kernelfit estimates per-species feeding kernels from stomach
// content observations and derives the kernel coefficients consumed by the
// size-spectrum model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sizespectrum/kernelfit/internal/version"
)

const defaultDBPath = "kernelfit.db"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	command, rest := args[0], args[1:]
	var err error
	switch command {
	case "migrate":
		err = handleMigrate(rest, stdout, stderr)
	case "import":
		err = handleImport(rest, stdout, stderr)
	case "fit":
		err = handleFit(ctx, rest, stdout, stderr)
	case "coefficients":
		err = handleCoefficients(rest, stdout, stderr)
	case "runs":
		err = handleRuns(rest, stdout, stderr)
	case "bins":
		err = handleBins(rest, stdout, stderr)
	case "version":
		fmt.Fprintln(stdout, version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}

	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case err != nil:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `kernelfit - feeding kernel estimation from stomach content data

Usage: kernelfit <command> [options]

Commands:
  migrate       Create or upgrade the observation database schema
  import        Import observation CSV files into the database
  fit           Fit every species and write the fitted parameter table
  coefficients  Write the kernel coefficient table of a stored fit run
  runs          List stored fit runs
  bins          Bin a species' sample, optionally against a fitted kernel
  version       Show kernelfit version
  help          Show this help message

Observation CSV columns:
  species_id, prey_mass, and either predator_mass or l (log mass ratio).
  prey_count is optional and defaults to 1.

Examples:
  kernelfit migrate -db fits.db
  kernelfit import -db fits.db stomachs.csv
  kernelfit fit -db fits.db -coefficients kernels.csv > fits.csv
  kernelfit fit -csv stomachs.csv -species cod,hake -method nelder-mead
  kernelfit coefficients -db fits.db -lambda 2.1
  kernelfit bins -db fits.db -species cod -run latest

Run 'kernelfit <command> -h' for the options of a command.
`)
}

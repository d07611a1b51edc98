// mintctl is the operator CLI for mintledger. Offline commands derive
// addresses, encode content and mint access tokens; the remaining commands
// send requests to a running server.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/pflag"
)

type command struct {
	summary string
	run     func(args []string, out io.Writer) error
}

func commands() map[string]command {
	return map[string]command{
		"address":   {"derive a factory or item address", runAddress},
		"content":   {"encode or decode off-chain content", runContent},
		"token":     {"issue a signed access token for a sender", runToken},
		"diag":      {"print CBOR diagnostic notation of a hex payload", runDiag},
		"configure": {"configure the caller's factory", runConfigure},
		"promote":   {"mint the next item of a factory", runPromote},
		"withdraw":  {"withdraw surplus from a factory", runWithdraw},
		"transfer":  {"send a transfer to an item", runTransfer},
		"fund":      {"credit an account through the faucet", runFund},
		"get":       {"read a factory, item or account", runGet},
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(out)
		return nil
	}
	cmd, ok := commands()[args[0]]
	if !ok {
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(args[1:], out)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mintctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	all := commands()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %s\n", name, all[name].summary)
	}
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("mintctl "+name, pflag.ContinueOnError)
	fs.SortFlags = false
	return fs
}

// Command merkletree is the offline companion utility described in
// SPEC_FULL.md §6: it builds a Merkle tree from data blocks given on the
// command line, a file, or a directory, prints the tree and root hash, and
// can generate and verify an inclusion proof for one of the blocks. Its
// command/flag shape is adapted from roach88-nysm's internal/cli package
// (a NewRootCommand constructor), the only example in the pack built around
// Cobra; here the root command carries every flag and has no subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/quietridge/merklesentry/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

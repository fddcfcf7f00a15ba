package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quietridge/merklesentry/internal/merkle"
	"github.com/quietridge/merklesentry/internal/walker"
)

// buildOptions holds the flags for the root command.
type buildOptions struct {
	inputFile  string
	directory  string
	outputFile string
	pretty     bool
	verify     string
}

// NewRootCommand builds the merkletree CLI described in SPEC_FULL.md §6:
// positional data blocks, or --input-file / --directory as alternate leaf
// sources, --output-file and --pretty for the rendered tree, and --verify
// to emit an inclusion proof and its verdict.
func NewRootCommand() *cobra.Command {
	opts := &buildOptions{}

	cmd := &cobra.Command{
		Use:   "merkletree [data...]",
		Short: "Build a Merkle tree and verify inclusion proofs offline",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args, cmd)
		},
	}
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cmd.Flags().StringVar(&opts.inputFile, "input-file", "", "read one data block per line from this file")
	cmd.Flags().StringVar(&opts.directory, "directory", "", "scan this directory for files instead of using data blocks")
	cmd.Flags().StringVar(&opts.outputFile, "output-file", "", "write the tree JSON here instead of stdout")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "pretty-print the tree JSON")
	cmd.Flags().StringVar(&opts.verify, "verify", "", "generate and verify an inclusion proof for this data block")

	return cmd
}

func runBuild(opts *buildOptions, args []string, cmd *cobra.Command) error {
	items, mode, err := gatherItems(opts, args)
	if err != nil {
		return err
	}

	tree, err := merkle.Build(items, mode)
	if err != nil {
		return fmt.Errorf("build tree: %w", err)
	}

	if err := renderTree(tree, opts, cmd); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merkle Root: %s\n", tree.Root().Hash)

	if opts.verify != "" {
		return runVerify(tree, mode, opts.verify, cmd)
	}
	return nil
}

// gatherItems resolves the leaf source list and the Mode to hash them with,
// per the precedence --directory > --input-file > positional data blocks.
func gatherItems(opts *buildOptions, args []string) ([]string, merkle.Mode, error) {
	switch {
	case opts.directory != "":
		paths, truncated, err := walker.Walk(opts.directory, 0)
		if err != nil {
			return nil, merkle.ModeFiles, fmt.Errorf("walk directory: %w", err)
		}
		_ = truncated
		return paths, merkle.ModeFiles, nil

	case opts.inputFile != "":
		lines, err := readLines(opts.inputFile)
		if err != nil {
			return nil, merkle.ModeData, fmt.Errorf("read input file: %w", err)
		}
		return lines, merkle.ModeData, nil

	default:
		return args, merkle.ModeData, nil
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func renderTree(tree *merkle.Tree, opts *buildOptions, cmd *cobra.Command) error {
	var data []byte
	var err error
	if opts.pretty {
		data, err = json.MarshalIndent(tree.Body(), "", "  ")
	} else {
		data, err = merkle.CanonicalJSON(tree.Body())
	}
	if err != nil {
		return fmt.Errorf("render tree body: %w", err)
	}
	data = append(data, '\n')

	if opts.outputFile != "" {
		return os.WriteFile(opts.outputFile, data, 0o644)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runVerify(tree *merkle.Tree, mode merkle.Mode, target string, cmd *cobra.Command) error {
	proof, err := tree.Prove(target, mode)
	if err != nil {
		return fmt.Errorf("generate proof: %w", err)
	}

	proofJSON, err := json.MarshalIndent(proof, "", "  ")
	if err != nil {
		return fmt.Errorf("render proof: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Proof: %s\n", proofJSON)

	ok, err := merkle.Verify(target, proof, tree.Root().Hash, mode)
	if err != nil {
		return fmt.Errorf("verify proof: %w", err)
	}

	verdict := "INVALID"
	if ok {
		verdict = "VALID"
	}
	fmt.Fprintln(cmd.OutOrStdout(), verdict)
	if !ok {
		return fmt.Errorf("proof verification failed for %q", target)
	}
	return nil
}

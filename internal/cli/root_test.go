package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quietridge/merklesentry/internal/apperr"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_TwoDataBlocksPrintsRoot(t *testing.T) {
	out, err := runCLI(t, "a", "b")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Merkle Root:") {
		t.Fatalf("output missing root line: %s", out)
	}
}

func TestCLI_VerifyPrintsValidVerdict(t *testing.T) {
	out, err := runCLI(t, "a", "b", "--verify=a")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "VALID") {
		t.Fatalf("expected VALID verdict, got: %s", out)
	}
	if strings.Contains(out, "INVALID") {
		t.Fatalf("did not expect INVALID verdict, got: %s", out)
	}
}

func TestCLI_VerifyUnknownBlockFailsWithNotFound(t *testing.T) {
	_, err := runCLI(t, "a", "b", "--verify=z")
	if err == nil {
		t.Fatal("expected error verifying a block not in the tree")
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected KindNotFound, got %v", err)
	}
}

func TestCLI_OutputFileWritesTreeJSON(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "tree.json")

	_, err := runCLI(t, "a", "b", "--output-file="+outPath)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if _, ok := body["hash"]; !ok {
		t.Fatalf("expected a hash field in tree body, got %v", body)
	}
}

func TestCLI_DirectoryModeScansFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "y.txt"), []byte("world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := runCLI(t, "--directory="+dir)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Merkle Root:") {
		t.Fatalf("output missing root line: %s", out)
	}
}

func TestCLI_InputFileReadsDataBlocksOnePerLine(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "blocks.txt")
	if err := os.WriteFile(inputPath, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := runCLI(t, "--input-file="+inputPath, "--verify=c")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "VALID") {
		t.Fatalf("expected VALID verdict, got: %s", out)
	}
}

func TestCLI_PrettyFlagIndentsOutput(t *testing.T) {
	out, err := runCLI(t, "a", "b", "--pretty")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "\n  ") {
		t.Fatalf("expected indented JSON output, got: %s", out)
	}
}

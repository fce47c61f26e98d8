// Package workspace defines the per-submission file layout inside the
// instance working directory.
package workspace

import "path/filepath"

const (
	sourceName     = "main.cpp"
	binaryName     = "program"
	stdinName      = "input.txt"
	stdoutName     = "output.txt"
	stderrName     = "runtime.log"
	compileLogName = "compile.log"
)

// Layout names every artifact path for one submission. All paths are
// inside the instance working directory; nothing is written elsewhere.
type Layout struct {
	RootDir        string
	SourcePath     string
	BinaryPath     string
	StdinPath      string
	StdoutPath     string
	StderrPath     string
	CompileLogPath string
}

// NewLayout builds the layout rooted at the working directory.
func NewLayout(rootDir string) Layout {
	return Layout{
		RootDir:        rootDir,
		SourcePath:     filepath.Join(rootDir, sourceName),
		BinaryPath:     filepath.Join(rootDir, binaryName),
		StdinPath:      filepath.Join(rootDir, stdinName),
		StdoutPath:     filepath.Join(rootDir, stdoutName),
		StderrPath:     filepath.Join(rootDir, stderrName),
		CompileLogPath: filepath.Join(rootDir, compileLogName),
	}
}

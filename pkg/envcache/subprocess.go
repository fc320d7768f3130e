package envcache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/benschubert/wast/pkg/stepdef"
)

// runSubprocess executes command, grounded on the teacher's local connector
// Exec pattern: build *exec.Cmd, set an explicit environment, and translate a
// non-zero exit into a RunResult rather than an error. When silentOnSuccess
// is set, output is buffered and only flushed to stdout/stderr if the
// command exits non-zero.
func runSubprocess(ctx context.Context, argv []string, env []string, dir string, silentOnSuccess bool, stdout, stderr io.Writer) (*stepdef.RunResult, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = env
	if dir != "" {
		cmd.Dir = dir
	}

	var outBuf, errBuf bytes.Buffer
	if silentOnSuccess {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	} else {
		cmd.Stdout = io.MultiWriter(&outBuf, stdout)
		cmd.Stderr = io.MultiWriter(&errBuf, stderr)
	}

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, runErr
		}
	}

	if silentOnSuccess && exitCode != 0 {
		stdout.Write(outBuf.Bytes())
		stderr.Write(errBuf.Bytes())
	}

	return &stepdef.RunResult{ExitCode: exitCode, Stdout: outBuf.Bytes(), Stderr: errBuf.Bytes()}, nil
}

// lookPathIn resolves file against pathEnv (a PATH-shaped, colon/semicolon
// separated list), not the process's own PATH — needed so command
// validation can be checked against a curated, environment-prefixed PATH
// rather than the host's.
func lookPathIn(file, pathEnv string) (string, error) {
	if containsPathSeparator(file) {
		if isExecutableFile(file) {
			return filepath.Clean(file), nil
		}
		return "", exec.ErrNotFound
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, file)
		if isExecutableFile(candidate) {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func containsPathSeparator(s string) bool {
	return strings.ContainsRune(s, os.PathSeparator) || strings.ContainsRune(s, '/')
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

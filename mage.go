//go:build mage
// +build mage

package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/magefile/mage/mg"
	"github.com/pkg/errors"
)

// binary is where Build puts the evreplay command.
const binary = "bin/evreplay"

// Build builds the evreplay command.
func Build(ctx context.Context) error {
	args := []string{"build", "-ldflags=-s -w", "-o", binary}
	if runtime.GOOS == "linux" {
		args = append(args, "-buildmode=pie")
	}
	args = append(args, "./cmd/evreplay")
	cmd := exec.CommandContext(ctx, "go", args...)
	// To minimize OS library dependence.
	_, err := runCommand(cmd, mg.Verbose(), extraEnvs{"CGO_ENABLED": "0"})
	return err
}

// Replay builds evreplay and runs it with the arguments in EVREPLAY_ARGS.
//
// EVREPLAY_ARGS is split with shell quoting rules, e.g.
// EVREPLAY_ARGS='-f "my events.json" -speed 10'.
func Replay(ctx context.Context) error {
	mg.CtxDeps(ctx, Build)

	args, err := shellquote.Split(os.Getenv("EVREPLAY_ARGS"))
	if err != nil {
		return errors.Wrap(err, "unable to split EVREPLAY_ARGS")
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	_, err = runCommand(cmd, true)
	return err
}

// Test runs the unit tests.
func Test(ctx context.Context) error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "./...")
	_, err := runCommand(exec.CommandContext(ctx, "go", args...), mg.Verbose())
	return err
}

// TestRepeat runs the unit tests ten times with the race detector, to shake
// out timing dependent failures in the replay engine.
//
// TEST_PKG narrows the packages, CPU_PROFILE writes a CPU profile.
func TestRepeat(ctx context.Context) error {
	args := []string{"test", "-race", "-count=10"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	if env := os.Getenv("CPU_PROFILE"); env != "" {
		args = append(args, fmt.Sprintf("-cpuprofile=%s", env))
	}
	if env := os.Getenv("TEST_PKG"); env != "" {
		args = append(args, env)
	} else {
		args = append(args, "./...")
	}
	_, err := runCommand(exec.CommandContext(ctx, "go", args...), mg.Verbose())
	return err
}

// TestIntegration runs the end to end replay tests.
//
// TEST_RUN selects tests by name.
func TestIntegration(ctx context.Context) error {
	args := []string{"test", "-tags=integration"}
	if env := os.Getenv("TEST_RUN"); env != "" {
		args = append(args, fmt.Sprintf("-run=%s", env))
	}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "./test/integration/...")
	cmd := exec.CommandContext(ctx, "go", args...)
	_, err := runCommand(cmd, mg.Verbose(), extraEnvs{"CGO_ENABLED": "0"})
	return err
}

// Lint runs go vet and checks formatting.
func Lint(ctx context.Context) error {
	mg.SerialCtxDeps(ctx, vet, gofmt)
	return nil
}

// vet runs go vet, including the integration tests.
func vet(ctx context.Context) error {
	packages, err := listPackages(ctx)
	if err != nil {
		return err
	}

	args := append([]string{"vet", "-tags=integration"}, packages...)
	_, err = runCommand(exec.CommandContext(ctx, "go", args...), mg.Verbose())
	return err
}

// gofmt fails if any file needs formatting.
func gofmt(ctx context.Context) error {
	out, err := runCommand(exec.CommandContext(ctx, "gofmt", "-l", "."), false)
	if err != nil {
		return errors.Wrap(err, "unable to run gofmt")
	}

	var unformatted []string
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		if f := sc.Text(); !strings.HasPrefix(f, "_examples/") {
			unformatted = append(unformatted, f)
		}
	}
	if len(unformatted) > 0 {
		return errors.Errorf("files need gofmt:\n%s", strings.Join(unformatted, "\n"))
	}
	return nil
}

// listPackages returns the import paths of every package in the module.
func listPackages(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "go", "list", "./...")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, errors.Errorf("unable to list packages: %+v\nOutput:\n%s", err, string(out))
	}

	var packages []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		packages = append(packages, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to list packages")
	}
	return packages, nil
}

// extraEnvs are added to the environment of a command.
type extraEnvs map[string]string

// runCommand runs cmd, capturing its combined output. The command inherits
// this process's environment plus any extra variables.
func runCommand(cmd *exec.Cmd, useStdOutput bool, extra ...extraEnvs) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	var w io.Writer = buf
	if useStdOutput {
		w = io.MultiWriter(buf, os.Stdout)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if len(extra) > 0 {
		envs := append([]string(nil), os.Environ()...)
		for _, e := range extra {
			for k, v := range e {
				envs = append(envs, fmt.Sprintf("%s=%s", k, v))
			}
		}
		cmd.Env = envs
	}
	return buf, cmd.Run()
}

package sonarscanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
)

// Completion markers printed by sonar-scanner on a successful run. Detection
// depends on these strings; runner_test pins them against real output.
var SuccessMarkers = []string{"ANALYSIS SUCCESSFUL", "EXECUTION SUCCESS"}

// Succeeded reports whether stdout carries a completion marker.
func Succeeded(stdout string) bool {
	for _, m := range SuccessMarkers {
		if strings.Contains(stdout, m) {
			return true
		}
	}
	return false
}

// Args builds the -D flags for one scan. baseDir is the workspace as the
// scanner process sees it.
func Args(req domain.RunRequest, baseDir, hostURL string) []string {
	args := []string{
		"-Dsonar.projectBaseDir=" + baseDir,
		"-Dsonar.projectKey=" + req.Identity.Key,
		"-Dsonar.projectName=" + req.Identity.Name,
	}
	switch req.Workspace.Mode {
	case domain.ModeCode:
		args = append(args, "-Dsonar.sources="+req.Workspace.SourceFile)
	case domain.ModeUpload:
		args = append(args, "-Dsonar.sources=.")
	}
	if hostURL != "" {
		args = append(args, "-Dsonar.host.url="+hostURL)
	}
	return append(args, "-Dsonar.login="+req.Token)
}

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the scanner itself exited or was killed.
const waitDelay = 2 * time.Second

// Runner executes a locally installed sonar-scanner.
type Runner struct {
	Path    string
	HostURL string
	Timeout time.Duration
}

func NewRunner(path, hostURL string, timeout time.Duration) *Runner {
	return &Runner{Path: path, HostURL: hostURL, Timeout: timeout}
}

func (r *Runner) Run(ctx context.Context, req domain.RunRequest) (domain.ScanOutcome, error) {
	if req.Workspace == nil {
		return domain.ScanOutcome{}, fmt.Errorf("run sonar-scanner: no workspace")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Path, Args(req, req.Workspace.Path, r.HostURL)...)
	cmd.Env = os.Environ()
	return Execute(cmd)
}

// Execute runs cmd to completion and classifies the result from its stdout.
// Only a failure to start the process is returned as an error.
func Execute(cmd *exec.Cmd) (domain.ScanOutcome, error) {
	start := time.Now()
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = waitDelay
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := domain.ScanOutcome{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		var ee *exec.ExitError
		if !errors.As(err, &ee) {
			return out, fmt.Errorf("run %s: %w", cmd.Path, err)
		}
		out.ExitCode = ee.ExitCode()
	}
	out.Succeeded = Succeeded(out.Stdout)
	return out, nil
}

package docker

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
	"github.com/bryanwahyu/sonarscan-api/internal/infra/executor/sonarscanner"
)

const (
	DefaultImage = "sonarsource/sonar-scanner-cli:latest"
	mountPoint   = "/usr/src"
)

// Runner executes sonar-scanner inside the official CLI image, with the
// workspace bind-mounted at /usr/src.
type Runner struct {
	Docker  string
	Image   string
	Network string
	HostURL string
	Timeout time.Duration
}

func NewRunner(image, hostURL string, timeout time.Duration) *Runner {
	if image == "" {
		image = DefaultImage
	}
	return &Runner{
		Docker:  "docker",
		Image:   image,
		Network: "host",
		HostURL: hostURL,
		Timeout: timeout,
	}
}

func (r *Runner) Run(ctx context.Context, req domain.RunRequest) (domain.ScanOutcome, error) {
	if req.Workspace == nil {
		return domain.ScanOutcome{}, fmt.Errorf("run sonar-scanner container: no workspace")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	return sonarscanner.Execute(exec.CommandContext(ctx, r.Docker, r.args(req)...))
}

func (r *Runner) args(req domain.RunRequest) []string {
	args := []string{"run", "--rm"}
	if r.Network != "" {
		args = append(args, "--network", r.Network)
	}
	args = append(args,
		"-v", fmt.Sprintf("%s:%s", req.Workspace.Path, mountPoint),
		r.Image,
	)
	return append(args, sonarscanner.Args(req, mountPoint, r.HostURL)...)
}

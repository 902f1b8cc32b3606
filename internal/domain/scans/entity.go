package scans

import (
	"context"
	"io"
	"sync"
	"time"
)

// Mode identifies how the source material reaches the workspace.
type Mode string

const (
	ModeGit    Mode = "git"
	ModeCode   Mode = "code"
	ModeUpload Mode = "upload"
)

// ProjectIdentity is the backend project a scan reports into.
type ProjectIdentity struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ScanRequest carries exactly one source variant.
type ScanRequest struct {
	ProjectKey  string
	ProjectName string

	Remote  *RemoteClone
	Inline  *InlineSource
	Archive *ArchiveUpload
}

type RemoteClone struct {
	URL string
}

type InlineSource struct {
	Code     string
	Filename string
}

// ArchiveUpload keeps every received file part so the workspace can reject
// more than one.
type ArchiveUpload struct {
	Parts []FilePart
}

type FilePart struct {
	Filename string
	Open     func() (io.ReadCloser, error)
}

// Mode validates the union and returns the populated variant.
func (r ScanRequest) Mode() (Mode, error) {
	var modes []Mode
	if r.Remote != nil {
		modes = append(modes, ModeGit)
	}
	if r.Inline != nil {
		modes = append(modes, ModeCode)
	}
	if r.Archive != nil {
		modes = append(modes, ModeUpload)
	}
	switch len(modes) {
	case 0:
		return "", Validation(MsgInvalidPayload)
	case 1:
		return modes[0], nil
	default:
		return "", Validation(MsgAmbiguousSource)
	}
}

// Workspace is an ownership handle on a scratch directory. Whoever receives
// one must call Release on every exit path.
type Workspace struct {
	Path       string
	Mode       Mode
	SourceFile string // set for ModeCode, relative to Path

	once    sync.Once
	release func() error
	err     error
}

func NewWorkspace(path string, mode Mode, release func() error) *Workspace {
	return &Workspace{Path: path, Mode: mode, release: release}
}

// Release removes the workspace. Safe to call more than once and on nil.
func (w *Workspace) Release() error {
	if w == nil {
		return nil
	}
	w.once.Do(func() {
		if w.release != nil {
			w.err = w.release()
		}
	})
	return w.err
}

// ScanOutcome is what the scanner reported. Succeeded is derived from stdout
// markers, not the exit code.
type ScanOutcome struct {
	Succeeded  bool   `json:"succeeded"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// Record status enum
type Status string

const (
	StatusReady    Status = "ready"
	StatusTimedOut Status = "timed_out"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
)

// ScanRecord is one entry of the scan history.
type ScanRecord struct {
	ID          string    `json:"id"`
	ProjectKey  string    `json:"project_key"`
	ProjectName string    `json:"project_name"`
	Mode        Mode      `json:"mode"`
	Status      Status    `json:"status"`
	GateStatus  string    `json:"gate_status,omitempty"`
	LogURL      string    `json:"log_url,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// RunRequest input for Runner
type RunRequest struct {
	Workspace *Workspace
	Identity  ProjectIdentity
	Token     string
}

// WorkspaceManager materializes a request on disk. The returned workspace can
// be non-nil together with an error when a directory was already created.
type WorkspaceManager interface {
	Prepare(ctx context.Context, key string, req ScanRequest) (*Workspace, error)
}

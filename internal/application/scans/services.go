package scans

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/sonarscan-api/internal/application"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/report"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
)

// Service runs the scan lifecycle. Safe for concurrent use; scans of the same
// project key are serialized.
type Service struct {
	Workspaces domain.WorkspaceManager
	Runner     domain.Runner
	Backend    report.Backend

	// optional, nil disables history, error rows and log archiving
	Repo       domain.Repository
	ScanErrors scanerrors.Repository
	Logs       domain.LogStore

	Clock  application.Clock
	Retry  RetryPolicy
	Token  string // reference credential; empty accepts any non-empty token
	Logger *zap.Logger

	leases leases
}

//
// ==== USE CASES ====
//

type ScanCommand struct {
	Token   string
	Request domain.ScanRequest
}

type ScanResult struct {
	ScanID         string
	Report         report.Document
	Ready          bool // false when the wait budget ran out before indexing
	StderrWarnings string
}

var errNotIndexed = errors.New("analysis not indexed yet")

// Authorize checks the forwarded credential against the reference one, if any.
func (s *Service) Authorize(token string) error {
	if token == "" {
		return domain.Unauthorized(domain.MsgInvalidToken)
	}
	if s.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		return domain.Unauthorized(domain.MsgInvalidToken)
	}
	return nil
}

// ProjectExists reports whether the backend already knows key.
func (s *Service) ProjectExists(ctx context.Context, key, token string) bool {
	c := s.Backend.Component(ctx, key, token)
	return c.OK() && c.Value.Key != ""
}

// Scan validates, rejects duplicates, prepares a workspace, runs the scanner
// and waits for the backend to index the result. The request context is
// detached: a disconnecting client does not abort a running scan.
func (s *Service) Scan(ctx context.Context, cmd ScanCommand) (*ScanResult, error) {
	if err := s.Authorize(cmd.Token); err != nil {
		return nil, err
	}
	mode, err := cmd.Request.Mode()
	if err != nil {
		return nil, err
	}
	id, err := domain.ResolveIdentity(cmd.Request)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	rec := &domain.ScanRecord{
		ID:          uuid.New().String(),
		ProjectKey:  id.Key,
		ProjectName: id.Name,
		Mode:        mode,
		StartedAt:   s.now(),
	}
	log := s.logger().With(
		zap.String("scan_id", rec.ID),
		zap.String("project_key", id.Key),
		zap.String("mode", string(mode)),
	)
	log.Info("scan.validated")

	unlock := s.leases.acquire(id.Key)
	defer unlock()

	if s.ProjectExists(ctx, id.Key, cmd.Token) {
		log.Info("scan.rejected")
		rec.Status = domain.StatusRejected
		s.save(ctx, log, rec)
		return nil, domain.Duplicate(id.Key)
	}

	ws, err := s.Workspaces.Prepare(ctx, id.Key, cmd.Request)
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			log.Warn("workspace cleanup failed", zap.Error(rerr))
		}
	}()
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = fmt.Errorf("prepare workspace: %w", err)
		}
		return nil, s.fail(ctx, log, rec, scanerrors.PhasePrepare, err)
	}
	log.Info("scan.prepared", zap.String("workspace", ws.Path))

	out, err := s.Runner.Run(ctx, domain.RunRequest{Workspace: ws, Identity: id, Token: cmd.Token})
	rec.LogURL = s.archive(ctx, log, rec, out)
	if err != nil {
		return nil, s.fail(ctx, log, rec, scanerrors.PhaseScan, fmt.Errorf("run scanner: %w", err))
	}
	if !out.Succeeded {
		return nil, s.fail(ctx, log, rec, scanerrors.PhaseScan, domain.ScanFailed(out.Stdout, out.Stderr, nil))
	}

	doc, ready := s.poll(ctx, id.Key, cmd.Token)
	if gate := doc.QualityGateStatus.Value; gate != nil {
		rec.GateStatus = gate.Status
	}
	if ready {
		rec.Status = domain.StatusReady
		log.Info("scan.finished", zap.String("gate", rec.GateStatus))
	} else {
		rec.Status = domain.StatusTimedOut
		log.Warn("scan.timed_out", zap.Int("attempts", s.Retry.Attempts()))
		s.saveError(ctx, log, rec, scanerrors.PhasePoll, domain.MsgStillProcessing, nil)
	}
	s.save(ctx, log, rec)

	return &ScanResult{
		ScanID:         rec.ID,
		Report:         doc,
		Ready:          ready,
		StderrWarnings: out.Stderr,
	}, nil
}

// Report fetches the normalized report for an existing project.
func (s *Service) Report(ctx context.Context, key, token string) (report.Document, error) {
	if err := s.Authorize(token); err != nil {
		return report.Document{}, err
	}
	doc := s.fetchReport(ctx, key, token)
	if !doc.Found() {
		return report.Document{}, domain.NotFound(domain.MsgReportNotFound)
	}
	return doc, nil
}

// History returns the latest scan records, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*domain.ScanRecord, error) {
	if s.Repo == nil {
		return []*domain.ScanRecord{}, nil
	}
	return s.Repo.Latest(ctx, limit)
}

// poll refetches the report until the backend has indexed the analysis or
// the retry budget is spent. The last fetched report is always returned.
func (s *Service) poll(ctx context.Context, key, token string) (report.Document, bool) {
	var doc report.Document
	op := func() error {
		doc = s.fetchReport(ctx, key, token)
		if !doc.Ready() {
			return errNotIndexed
		}
		return nil
	}
	err := backoff.Retry(op, s.Retry.backOff(ctx))
	return doc, err == nil
}

// fetchReport issues the five backend queries concurrently and assembles them.
func (s *Service) fetchReport(ctx context.Context, key, token string) report.Document {
	var in report.Inputs
	var g errgroup.Group
	g.Go(func() error { in.Component = s.Backend.Component(ctx, key, token); return nil })
	g.Go(func() error { in.Analyses = s.Backend.LatestAnalysis(ctx, key, token); return nil })
	g.Go(func() error { in.Measures = s.Backend.Measures(ctx, key, token); return nil })
	g.Go(func() error { in.Issues = s.Backend.Issues(ctx, key, token); return nil })
	g.Go(func() error { in.QualityGate = s.Backend.QualityGate(ctx, key, token); return nil })
	// failures travel inside each Result, so Wait is only a join and is always nil
	_ = g.Wait()
	return report.Assemble(in)
}

// fail records a failed lifecycle and hands err back.
func (s *Service) fail(ctx context.Context, log *zap.Logger, rec *domain.ScanRecord, phase scanerrors.Phase, err error) error {
	log.Error("scan.failed", zap.String("phase", string(phase)), zap.Error(err))
	rec.Status = domain.StatusFailed
	s.save(ctx, log, rec)

	details := map[string]string{}
	var de *domain.Error
	if errors.As(err, &de) {
		details["details"] = de.Details
		details["stdout"] = de.Stdout
		details["stderr"] = de.Stderr
	}
	s.saveError(ctx, log, rec, phase, err.Error(), details)
	return err
}

func (s *Service) save(ctx context.Context, log *zap.Logger, rec *domain.ScanRecord) {
	if s.Repo == nil {
		return
	}
	rec.DurationMS = s.now().Sub(rec.StartedAt).Milliseconds()
	if err := s.Repo.Save(ctx, rec); err != nil {
		log.Warn("save scan record failed", zap.Error(err))
	}
}

func (s *Service) saveError(ctx context.Context, log *zap.Logger, rec *domain.ScanRecord, phase scanerrors.Phase, msg string, details map[string]string) {
	if s.ScanErrors == nil {
		return
	}
	e := &scanerrors.ScanError{
		ScanID:     rec.ID,
		ProjectKey: rec.ProjectKey,
		Phase:      phase,
		Message:    msg,
		CreatedAt:  s.now(),
	}
	if len(details) > 0 {
		b, _ := json.Marshal(details)
		e.DetailsJSON = string(b)
	}
	if err := s.ScanErrors.Save(ctx, e); err != nil {
		log.Warn("save scan error failed", zap.Error(err))
	}
}

// archive uploads the scanner output and returns its URL, or "" when
// archiving is off or fails.
func (s *Service) archive(ctx context.Context, log *zap.Logger, rec *domain.ScanRecord, out domain.ScanOutcome) string {
	if s.Logs == nil || (out.Stdout == "" && out.Stderr == "") {
		return ""
	}
	var b strings.Builder
	b.WriteString("== stdout ==\n")
	b.WriteString(out.Stdout)
	b.WriteString("\n== stderr ==\n")
	b.WriteString(out.Stderr)

	key := fmt.Sprintf("%s/%s/scanner.log", rec.ProjectKey, rec.ID)
	url, err := s.Logs.PutLog(ctx, key, []byte(b.String()))
	if err != nil {
		log.Warn("archive scanner log failed", zap.Error(err))
		return ""
	}
	return url
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

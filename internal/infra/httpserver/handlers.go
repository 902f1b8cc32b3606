package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appscans "github.com/bryanwahyu/sonarscan-api/internal/application/scans"
	domai "github.com/bryanwahyu/sonarscan-api/internal/domain/ai"
	"github.com/bryanwahyu/sonarscan-api/internal/domain/report"
	domain "github.com/bryanwahyu/sonarscan-api/internal/domain/scans"
	"github.com/bryanwahyu/sonarscan-api/internal/middleware"
)

// multipart parts above this size spill to temp files
const multipartMemory = 32 << 20

// scanPayload is the JSON body of POST /scan. Presence, not emptiness,
// selects the source variant.
type scanPayload struct {
	GitURL      *string `json:"git_url"`
	Code        *string `json:"code"`
	Filename    *string `json:"filename"`
	ProjectKey  *string `json:"project_key"`
	ProjectName *string `json:"project_name"`
}

type scanResponse struct {
	report.Document
	StderrWarnings string `json:"scanner_stderr_warnings,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

type insightResponse struct {
	ProjectKey string          `json:"project_key"`
	AnalysisID string          `json:"analysis_id,omitempty"`
	CreatedAt  string          `json:"created_at"`
	Insight    json.RawMessage `json:"insight"`
}

// POST /scan
func (r *Router) handleScan(w http.ResponseWriter, req *http.Request) error {
	var (
		scanReq domain.ScanRequest
		err     error
	)
	if isMultipart(req) {
		scanReq, err = r.decodeUpload(w, req)
		if req.MultipartForm != nil {
			defer req.MultipartForm.RemoveAll()
		}
	} else {
		scanReq, err = decodeJSON(req)
	}
	if err != nil {
		return err
	}

	middleware.IncrementScans()
	middleware.IncrementScansRunning()
	res, err := r.scansSvc.Scan(req.Context(), appscans.ScanCommand{
		Token:   middleware.TokenFromContext(req.Context()),
		Request: scanReq,
	})
	middleware.DecrementScansRunning()
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindValidation, domain.KindDuplicate, domain.KindUnauthorized:
		default:
			middleware.IncrementScansFailed()
		}
		return err
	}

	out := scanResponse{Document: res.Report, StderrWarnings: res.StderrWarnings}
	status := http.StatusOK
	if !res.Ready {
		middleware.IncrementScansTimedOut()
		out.Warning = domain.MsgStillProcessing
		status = http.StatusAccepted
	}
	r.logger.Info("scan response",
		zap.String("scan_id", res.ScanID),
		zap.Int("status", status),
	)
	writeJSON(w, status, out)
	return nil
}

func isMultipart(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data")
}

func (r *Router) decodeUpload(w http.ResponseWriter, req *http.Request) (domain.ScanRequest, error) {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload)
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ScanRequest{}, err
		}
		return domain.ScanRequest{}, domain.Validation(domain.MsgInvalidRequest)
	}
	form := req.MultipartForm

	headers := form.File["file"]
	if len(headers) == 0 {
		// an empty file input arrives as a plain value
		if _, ok := form.Value["file"]; ok {
			return domain.ScanRequest{}, domain.ErrNoFileSelected
		}
		return domain.ScanRequest{}, domain.Validation(domain.MsgInvalidRequest)
	}

	parts := make([]domain.FilePart, 0, len(headers))
	for _, fh := range headers {
		parts = append(parts, filePart(fh))
	}
	return domain.ScanRequest{
		ProjectKey:  req.FormValue("project_key"),
		ProjectName: middleware.SanitizeString(req.FormValue("project_name")),
		Archive:     &domain.ArchiveUpload{Parts: parts},
	}, nil
}

func filePart(fh *multipart.FileHeader) domain.FilePart {
	return domain.FilePart{
		Filename: fh.Filename,
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

func decodeJSON(req *http.Request) (domain.ScanRequest, error) {
	var p scanPayload
	if err := json.NewDecoder(req.Body).Decode(&p); err != nil {
		return domain.ScanRequest{}, domain.Validation(domain.MsgInvalidRequest)
	}

	out := domain.ScanRequest{
		ProjectKey:  deref(p.ProjectKey),
		ProjectName: middleware.SanitizeString(deref(p.ProjectName)),
	}
	if p.GitURL != nil {
		if err := middleware.ValidateGitURL(*p.GitURL); err != nil {
			return domain.ScanRequest{}, domain.Validation(err.Error())
		}
		out.Remote = &domain.RemoteClone{URL: *p.GitURL}
	}
	if p.Code != nil {
		out.Inline = &domain.InlineSource{Code: *p.Code, Filename: deref(p.Filename)}
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GET /report/{project_key}
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	key := chi.URLParam(req, "project_key")
	doc, err := r.scansSvc.Report(req.Context(), key, middleware.TokenFromContext(req.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, doc)
	return nil
}

// GET /report/{project_key}/insights
func (r *Router) handleInsights(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return domai.ErrDisabled
	}
	key := chi.URLParam(req, "project_key")
	in, err := r.aiSvc.Insights(req.Context(), key, middleware.TokenFromContext(req.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, insightResponse{
		ProjectKey: in.ProjectKey,
		AnalysisID: in.AnalysisID,
		CreatedAt:  in.CreatedAt.UTC().Format(time.RFC3339),
		Insight:    rawJSON(in.Result),
	})
	return nil
}

// GET /scans?limit=N
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	recs, err := r.scansSvc.History(req.Context(), middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, recs)
	return nil
}

func rawJSON(s string) json.RawMessage {
	if !json.Valid([]byte(s)) {
		b, _ := json.Marshal(s)
		return b
	}
	return json.RawMessage(s)
}

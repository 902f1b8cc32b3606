package sonarqube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bryanwahyu/sonarscan-api/internal/domain/report"
)

const (
	DefaultIssuePageSize = 500
	DefaultTimeout       = 15 * time.Second

	// cap on error bodies read back into a message
	maxErrorBody = 4 << 10
)

// Client queries the SonarQube web API. Every call authenticates with the
// caller's token as the Basic-auth user and an empty password.
type Client struct {
	BaseURL       string
	HTTP          *http.Client
	IssuePageSize int
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTP:          &http.Client{Timeout: timeout},
		IssuePageSize: DefaultIssuePageSize,
	}
}

var _ report.Backend = (*Client)(nil)

func (c *Client) Component(ctx context.Context, key, token string) report.Result[report.Component] {
	var body struct {
		Component report.Component `json:"component"`
	}
	if err := c.get(ctx, "/api/components/show", url.Values{"component": {key}}, token, &body); err != nil {
		return report.Fail[report.Component](err.Error())
	}
	if body.Component.Key == "" {
		return report.Fail[report.Component]("component not found")
	}
	return report.Ok(body.Component)
}

func (c *Client) LatestAnalysis(ctx context.Context, key, token string) report.Result[[]report.Analysis] {
	var body struct {
		Analyses []report.Analysis `json:"analyses"`
	}
	q := url.Values{"project": {key}, "ps": {"1"}}
	if err := c.get(ctx, "/api/project_analyses/search", q, token, &body); err != nil {
		return report.Fail[[]report.Analysis](err.Error())
	}
	return report.Ok(body.Analyses)
}

func (c *Client) Measures(ctx context.Context, key, token string) report.Result[[]report.Measure] {
	var body struct {
		Component struct {
			Measures []report.Measure `json:"measures"`
		} `json:"component"`
	}
	q := url.Values{"component": {key}, "metricKeys": {strings.Join(report.MetricKeys, ",")}}
	if err := c.get(ctx, "/api/measures/component", q, token, &body); err != nil {
		return report.Fail[[]report.Measure](err.Error())
	}
	return report.Ok(body.Component.Measures)
}

func (c *Client) Issues(ctx context.Context, key, token string) report.Result[[]report.RawIssue] {
	var body struct {
		Issues []report.RawIssue `json:"issues"`
	}
	ps := c.IssuePageSize
	if ps <= 0 {
		ps = DefaultIssuePageSize
	}
	q := url.Values{"componentKeys": {key}, "ps": {strconv.Itoa(ps)}}
	if err := c.get(ctx, "/api/issues/search", q, token, &body); err != nil {
		return report.Fail[[]report.RawIssue](err.Error())
	}
	return report.Ok(body.Issues)
}

func (c *Client) QualityGate(ctx context.Context, key, token string) report.Result[report.ProjectStatus] {
	var body struct {
		ProjectStatus report.ProjectStatus `json:"projectStatus"`
	}
	if err := c.get(ctx, "/api/qualitygates/project_status", url.Values{"projectKey": {key}}, token, &body); err != nil {
		return report.Fail[report.ProjectStatus](err.Error())
	}
	return report.Ok(body.ProjectStatus)
}

// Check reports whether the server is up. It needs no token.
func (c *Client) Check(ctx context.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/api/system/status", url.Values{}, "", &body); err != nil {
		return err
	}
	if body.Status != "UP" {
		return fmt.Errorf("sonarqube status %s", body.Status)
	}
	return nil
}

// apiErrors is the error envelope SonarQube returns on 4xx.
type apiErrors struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}

func (c *Client) get(ctx context.Context, path string, q url.Values, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	if token != "" {
		req.SetBasicAuth(token, "")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var ae apiErrors
		if json.Unmarshal(raw, &ae) == nil && len(ae.Errors) > 0 {
			msgs := make([]string, 0, len(ae.Errors))
			for _, e := range ae.Errors {
				msgs = append(msgs, e.Msg)
			}
			return fmt.Errorf("GET %s: %s: %s", path, resp.Status, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("GET %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

package scans

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIdentity(t *testing.T) {
	tests := []struct {
		name    string
		req     ScanRequest
		wantKey string
		wantMsg string
	}{
		{
			name:    "explicit key wins",
			req:     ScanRequest{ProjectKey: "explicit", ProjectName: "Demo", Remote: &RemoteClone{URL: "https://github.com/acme/tool.git"}},
			wantKey: "explicit",
		},
		{
			name:    "git url strips .git",
			req:     ScanRequest{ProjectName: "Demo", Remote: &RemoteClone{URL: "https://github.com/acme/tool.git"}},
			wantKey: "tool",
		},
		{
			name:    "git url without suffix",
			req:     ScanRequest{ProjectName: "Demo", Remote: &RemoteClone{URL: "https://gitlab.example.com/group/service"}},
			wantKey: "service",
		},
		{
			name:    "ssh git url",
			req:     ScanRequest{ProjectName: "Demo", Remote: &RemoteClone{URL: "git@github.com:acme/widget.git"}},
			wantKey: "widget",
		},
		{
			name:    "unparseable git url falls back",
			req:     ScanRequest{ProjectName: "Demo", Remote: &RemoteClone{URL: "https://github.com/acme/"}},
			wantKey: DefaultGitKey,
		},
		{
			name:    "inline filename stem",
			req:     ScanRequest{ProjectName: "Demo", Inline: &InlineSource{Code: "print(1)", Filename: "a.py"}},
			wantKey: "a",
		},
		{
			name:    "archive filename stem",
			req:     ScanRequest{ProjectName: "Demo", Archive: &ArchiveUpload{Parts: []FilePart{{Filename: "backend.zip"}}}},
			wantKey: "backend",
		},
		{
			name:    "inline without filename or key",
			req:     ScanRequest{ProjectName: "Demo", Inline: &InlineSource{Code: "x"}},
			wantMsg: MsgMissingKey,
		},
		{
			name:    "missing name",
			req:     ScanRequest{ProjectKey: "k", Inline: &InlineSource{Code: "x"}},
			wantMsg: MsgMissingName,
		},
		{
			name:    "path traversal key",
			req:     ScanRequest{ProjectKey: "../etc", ProjectName: "Demo", Inline: &InlineSource{Code: "x"}},
			wantMsg: "Invalid project_key: use letters, digits, '-', '_', '.' or ':' (max 400 chars)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ResolveIdentity(tt.req)
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
				var e *Error
				require.True(t, errors.As(err, &e))
				assert.Equal(t, tt.wantMsg, e.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, id.Key)
			assert.Equal(t, "Demo", id.Name)
		})
	}
}

func TestScanRequest_Mode(t *testing.T) {
	mode, err := ScanRequest{Inline: &InlineSource{}}.Mode()
	require.NoError(t, err)
	assert.Equal(t, ModeCode, mode)

	_, err = ScanRequest{}.Mode()
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = ScanRequest{Inline: &InlineSource{}, Remote: &RemoteClone{}}.Mode()
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, MsgAmbiguousSource, e.Message)
}

func TestError_IsMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("prepare: %w", Validation(MsgTooManyFiles))
	assert.True(t, errors.Is(err, ErrTooManyFiles))
	assert.False(t, errors.Is(err, ErrNoFileSelected))
	assert.True(t, errors.Is(Unauthorized(MsgInvalidToken), ErrUnauthorized))
}

func TestWorkspace_ReleaseOnce(t *testing.T) {
	calls := 0
	ws := NewWorkspace("/tmp/x", ModeCode, func() error {
		calls++
		return nil
	})
	require.NoError(t, ws.Release())
	require.NoError(t, ws.Release())
	assert.Equal(t, 1, calls)

	var nilWS *Workspace
	assert.NoError(t, nilWS.Release())
}

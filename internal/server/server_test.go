package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/core/pipeline"
	"github.com/bugspot/bugspot/internal/duplicates"
	"github.com/bugspot/bugspot/internal/integrations/github"
)

type fakeTriage struct {
	report  *pipeline.Report
	confirm *pipeline.Confirmation
	result  *pipeline.Result
	err     error
}

func (f *fakeTriage) Submit(ctx context.Context, report *pipeline.Report) (*pipeline.Result, error) {
	f.report = report
	return f.result, f.err
}

func (f *fakeTriage) Confirm(ctx context.Context, c *pipeline.Confirmation) (*pipeline.Result, error) {
	f.confirm = c
	return f.result, f.err
}

type fakeUploads struct {
	filename, contentType string
	body                  []byte
}

func (f *fakeUploads) Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error) {
	f.filename, f.contentType = filename, contentType
	f.body, _ = io.ReadAll(body)
	return "https://bugs.example.com/bugspot/" + filename, nil
}

type fakeEvents struct {
	events []interface{}
	err    error
}

func (f *fakeEvents) Handle(ctx context.Context, event interface{}) error {
	f.events = append(f.events, event)
	return f.err
}

// loopback trusts the httptest client as if it were a reverse proxy.
func loopback(t *testing.T) []netip.Prefix {
	t.Helper()
	prefixes, err := ParseTrustedProxies([]string{"127.0.0.0/8", "::1"})
	require.NoError(t, err)
	return prefixes
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(opts))
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "127.0.0.1", body["clientAddress"])
}

func TestSubmitMapsRequest(t *testing.T) {
	triage := &fakeTriage{result: &pipeline.Result{
		Action:   pipeline.OutcomeSubmitted,
		Message:  "Thanks!",
		IssueURL: "https://github.com/acme/app/issues/42",
	}}
	srv := newTestServer(t, Options{Triage: triage, TrustedProxies: loopback(t)})

	payload := `{"formId":"f1","title":"Crash","description":"It crashes","steps":["open","click"],` +
		`"customData":{"plan":"pro"},"demo":true}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/report/ai", bytes.NewBufferString(payload))
	require.NoError(t, err)
	req.Header.Set(CaptchaHeader, "tok")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "submitted", body["action"])
	assert.Equal(t, "https://github.com/acme/app/issues/42", body["issueUrl"])
	assert.NotContains(t, body, "reportId")

	require.NotNil(t, triage.report)
	assert.Equal(t, "f1", triage.report.FormID)
	assert.Equal(t, []string{"open", "click"}, triage.report.Steps)
	assert.Equal(t, `{"plan":"pro"}`, triage.report.CustomData)
	assert.Equal(t, "tok", triage.report.CaptchaToken)
	assert.Equal(t, "203.0.113.9", triage.report.ClientIP)
	assert.True(t, triage.report.Demo)
}

func TestSubmitDuplicatesResponse(t *testing.T) {
	triage := &fakeTriage{result: &pipeline.Result{
		Action:     pipeline.OutcomeDuplicates,
		ReportID:   "abc",
		Duplicates: []duplicates.Candidate{{ID: 7, Title: "Crash on save"}},
	}}
	srv := newTestServer(t, Options{Triage: triage})

	resp, err := http.Post(srv.URL+"/api/report/ai", "application/json", bytes.NewBufferString(`{"formId":"f1"}`))
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, "duplicates", body["action"])
	assert.Equal(t, "abc", body["reportId"])
	require.Len(t, body["duplicates"], 1)
}

func TestCustomDataString(t *testing.T) {
	assert.Equal(t, "", customDataString(nil))
	assert.Equal(t, "", customDataString(json.RawMessage("null")))
	assert.Equal(t, "plain", customDataString(json.RawMessage(`"plain"`)))
	assert.Equal(t, `[1,2]`, customDataString(json.RawMessage(` [1,2] `)))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", apperror.New(apperror.KindValidation, "Missing required fields id, title and description."), 400, "Missing required fields id, title and description."},
		{"captcha", apperror.New(apperror.KindCaptchaRejected, "Captcha validation failed."), 403, "Captcha validation failed."},
		{"not found", apperror.New(apperror.KindNotFound, "Form not found"), 404, "Form not found"},
		{"quota", apperror.New(apperror.KindQuotaExceeded, "Monthly report limit reached. Please upgrade your plan."), 429, "Monthly report limit reached. Please upgrade your plan."},
		{"internal hides detail", errors.New("db exploded"), 500, "AI processing failed."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Options{Triage: &fakeTriage{err: tt.err}})
			resp, err := http.Post(srv.URL+"/api/report/ai", "application/json", bytes.NewBufferString(`{}`))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.msg, decode(t, resp)["error"])
		})
	}
}

func TestMalformedBody(t *testing.T) {
	triage := &fakeTriage{}
	srv := newTestServer(t, Options{Triage: triage})

	resp, err := http.Post(srv.URL+"/api/report/ai", "application/json", bytes.NewBufferString(`{not json`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body.", decode(t, resp)["error"])
	assert.Nil(t, triage.report)
}

func TestConfirm(t *testing.T) {
	triage := &fakeTriage{result: &pipeline.Result{
		Action:   pipeline.OutcomeDuplicateHandled,
		IssueURL: "https://github.com/acme/app/issues/7",
	}}
	srv := newTestServer(t, Options{Triage: triage})

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/report/ai",
		bytes.NewBufferString(`{"reportId":"abc","duplicateIssueId":7}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate_handled", decode(t, resp)["action"])

	require.NotNil(t, triage.confirm)
	assert.Equal(t, "abc", triage.confirm.ReportID)
	require.NotNil(t, triage.confirm.DuplicateIssueID)
	assert.Equal(t, 7, *triage.confirm.DuplicateIssueID)
}

func TestConfirmNullDuplicate(t *testing.T) {
	triage := &fakeTriage{result: &pipeline.Result{Action: pipeline.OutcomeSubmitted}}
	srv := newTestServer(t, Options{Triage: triage})

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/report/ai",
		bytes.NewBufferString(`{"reportId":"abc","duplicateIssueId":null}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Nil(t, triage.confirm.DuplicateIssueID)
}

func TestRateLimit(t *testing.T) {
	triage := &fakeTriage{result: &pipeline.Result{Action: pipeline.OutcomeQuestion}}
	srv := newTestServer(t, Options{Triage: triage, TrustedProxies: loopback(t), AIRequests: 2, AIWindow: time.Minute})

	post := func(ip string) int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/report/ai", bytes.NewBufferString(`{}`))
		require.NoError(t, err)
		req.Header.Set("X-Real-IP", ip)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, post("198.51.100.1"))
	assert.Equal(t, http.StatusOK, post("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.1"))
	assert.Equal(t, http.StatusOK, post("198.51.100.2"), "limits are per IP")
}

func TestForwardedHeadersIgnoredWithoutTrustedProxy(t *testing.T) {
	triage := &fakeTriage{result: &pipeline.Result{Action: pipeline.OutcomeQuestion}}
	srv := newTestServer(t, Options{Triage: triage, AIRequests: 1, AIWindow: time.Hour})

	post := func(forwarded string) int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/report/ai", bytes.NewBufferString(`{}`))
		require.NoError(t, err)
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, post("198.51.100.1"))
	assert.Equal(t, "127.0.0.1", triage.report.ClientIP)
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.2"), "rotating headers must not reset the limit")
}

func TestForwardedHeadersIgnoredFromUntrustedPeer(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	var seen string
	h := RealIP(trusted, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = clientIP(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.50:4711"
	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "192.0.2.50", seen)
}

func TestRealIPFromTrustedProxy(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		headers map[string]string
		want    string
	}{
		{
			name:    "rightmost untrusted hop wins",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.66, 198.51.100.7, 10.1.2.3"},
			want:    "198.51.100.7",
		},
		{
			name:    "x-real-ip without x-forwarded-for",
			headers: map[string]string{"X-Real-IP": "198.51.100.8"},
			want:    "198.51.100.8",
		},
		{
			name:    "garbled hop keeps the peer",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.9, not-an-ip"},
			want:    "10.0.0.5",
		},
		{
			name:    "configured header only",
			header:  "CF-Connecting-IP",
			headers: map[string]string{"CF-Connecting-IP": "2001:db8::1", "X-Forwarded-For": "198.51.100.10"},
			want:    "2001:db8::1",
		},
		{
			name:    "configured header missing keeps the peer",
			header:  "CF-Connecting-IP",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.11"},
			want:    "10.0.0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RealIP(trusted, tt.header)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = clientIP(r)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.5:4711"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.0/8", " 192.0.2.1 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "192.0.2.1/32", prefixes[1].String())
	assert.Equal(t, "::1/128", prefixes[2].String())

	_, err = ParseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestIPLimiterRefills(t *testing.T) {
	l := newIPLimiter(1, 10*time.Second)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	now = now.Add(10 * time.Second)
	assert.True(t, l.allow("a"))
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, Options{AllowedOrigins: []string{"https://app.example.com"}})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/report/ai", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), CaptchaHeader)

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUpload(t *testing.T) {
	uploads := &fakeUploads{}
	srv := newTestServer(t, Options{Uploads: uploads})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="shot.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/report/file-upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://bugs.example.com/bugspot/shot.png", decode(t, resp)["url"])
	assert.Equal(t, "image/png", uploads.contentType)
	assert.Equal(t, []byte("png-bytes"), uploads.body)
}

func TestUploadMissingFile(t *testing.T) {
	srv := newTestServer(t, Options{Uploads: &fakeUploads{}})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/report/file-upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No file provided", decode(t, resp)["error"])
}

func signedWebhook(t *testing.T, url, secret, eventType, payload string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(payload))
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func TestWebhook(t *testing.T) {
	events := &fakeEvents{}
	srv := newTestServer(t, Options{Events: events, WebhookSecret: "s3cret"})
	payload := `{"action":"closed","issue":{"number":12},"repository":{"full_name":"acme/app"}}`

	resp, err := http.DefaultClient.Do(signedWebhook(t, srv.URL+"/api/github/webhook", "s3cret", "issues", payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["success"])

	require.Len(t, events.events, 1)
	issue, ok := events.events[0].(*github.IssuesEvent)
	require.True(t, ok)
	assert.Equal(t, 12, issue.GetIssue().GetNumber())
}

func TestWebhookBadSignature(t *testing.T) {
	events := &fakeEvents{}
	srv := newTestServer(t, Options{Events: events, WebhookSecret: "s3cret"})

	req := signedWebhook(t, srv.URL+"/api/github/webhook", "wrong", "issues", `{"action":"closed"}`)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Invalid signature", decode(t, resp)["error"])
	assert.Empty(t, events.events)
}

func TestWebhookHandlerFailure(t *testing.T) {
	events := &fakeEvents{err: errors.New("ledger locked")}
	srv := newTestServer(t, Options{Events: events, WebhookSecret: "s3cret"})

	req := signedWebhook(t, srv.URL+"/api/github/webhook", "s3cret", "issues", `{"action":"closed"}`)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Webhook processing failed", decode(t, resp)["error"])
}

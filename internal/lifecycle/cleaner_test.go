package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	gh "github.com/google/go-github/v60/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugspot/bugspot/internal/core/apperror"
	"github.com/bugspot/bugspot/internal/storage"
)

type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
	put     []string
	failPut bool
}

func (f *fakeObjects) NewKey(filename string) string { return "bugspot/fixed-" + filename }

func (f *fakeObjects) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if f.failPut {
		return "", errors.New("bucket unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put = append(f.put, key)
	return "https://bugs.example.com/" + key, nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type sentMail struct {
	to, subject, html string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, html})
	return nil
}

func seed(t *testing.T) (*storage.Store, storage.User, storage.Form) {
	t.Helper()
	ctx := context.Background()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	u, err := s.CreateUser(ctx, storage.User{GitHubID: "4242", Username: "octo"})
	require.NoError(t, err)
	f, err := s.CreateForm(ctx, storage.Form{UserID: u.ID, Name: "App", GitHubRepo: "acme/app", ShowIssueLink: true})
	require.NoError(t, err)
	return s, u, f
}

func TestIssueClosedCleansUp(t *testing.T) {
	s, _, f := seed(t)
	ctx := context.Background()
	_, err := s.RecordSubmission(ctx, storage.Submission{
		FormID: f.ID, IssueNumber: 12, Email: "r@example.com",
		ScreenshotKey: "bugspot/a.png", VideoKey: "bugspot/b.mp4",
	})
	require.NoError(t, err)
	_, err = s.RecordSubmission(ctx, storage.Submission{FormID: f.ID, IssueNumber: 13})
	require.NoError(t, err)

	objects := &fakeObjects{}
	mailer := &fakeMailer{}
	c := NewCleaner(s, objects, mailer)

	event := &gh.IssuesEvent{
		Action: gh.String("closed"),
		Issue:  &gh.Issue{Number: gh.Int(12)},
		Repo:   &gh.Repository{FullName: gh.String("acme/app")},
	}
	require.NoError(t, c.Handle(ctx, event))

	assert.ElementsMatch(t, []string{"bugspot/a.png", "bugspot/b.mp4"}, objects.deleted)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "r@example.com", mailer.sent[0].to)
	assert.Equal(t, "Bugspot (acme/app - Issue #12)", mailer.sent[0].subject)
	assert.Contains(t, mailer.sent[0].html, "https://github.com/acme/app/issues/12")

	issue := 12
	left, err := s.FindSubmissions(ctx, "acme/app", &issue)
	require.NoError(t, err)
	assert.Empty(t, left)

	all, err := s.FindSubmissions(ctx, "acme/app", nil)
	require.NoError(t, err)
	assert.Len(t, all, 1, "other issues stay untouched")
}

func TestMailFailureDoesNotBlockCleanup(t *testing.T) {
	s, _, f := seed(t)
	ctx := context.Background()
	_, err := s.RecordSubmission(ctx, storage.Submission{FormID: f.ID, IssueNumber: 5, Email: "r@example.com"})
	require.NoError(t, err)

	c := NewCleaner(s, nil, &fakeMailer{err: errors.New("smtp down")})
	issue := 5
	n, err := c.CleanupIssue(ctx, "acme/app", &issue)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepositoryDeletedCleansAll(t *testing.T) {
	s, _, f := seed(t)
	ctx := context.Background()
	for _, n := range []int{1, 2, storage.ClosedIssueNumber} {
		_, err := s.RecordSubmission(ctx, storage.Submission{FormID: f.ID, IssueNumber: n, IsClosed: n < 0})
		require.NoError(t, err)
	}

	c := NewCleaner(s, &fakeObjects{}, nil)
	event := &gh.RepositoryEvent{
		Action: gh.String("deleted"),
		Repo:   &gh.Repository{FullName: gh.String("acme/app")},
	}
	require.NoError(t, c.Handle(ctx, event))

	all, err := s.FindSubmissions(ctx, "acme/app", nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRepositoryRenamed(t *testing.T) {
	s, _, f := seed(t)
	ctx := context.Background()
	c := NewCleaner(s, nil, nil)

	event := &gh.RepositoryEvent{
		Action: gh.String("renamed"),
		Repo: &gh.Repository{
			Name:  gh.String("app2"),
			Owner: &gh.User{Login: gh.String("acme")},
		},
		Changes: &gh.EditChange{Repo: &gh.EditRepo{Name: &gh.RepoName{From: gh.String("app")}}},
	}
	require.NoError(t, c.Handle(ctx, event))

	got, err := s.GetFormWithOwner(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme/app2", got.Form.GitHubRepo)
}

func TestInstallationEvents(t *testing.T) {
	s, _, f := seed(t)
	ctx := context.Background()
	c := NewCleaner(s, nil, nil)

	created := &gh.InstallationEvent{
		Action:       gh.String("created"),
		Installation: &gh.Installation{ID: gh.Int64(777)},
		Sender:       &gh.User{ID: gh.Int64(4242)},
	}
	require.NoError(t, c.Handle(ctx, created))
	got, err := s.GetFormWithOwner(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(777), got.Owner.InstallationID)

	deleted := &gh.InstallationEvent{Action: gh.String("deleted"), Sender: &gh.User{ID: gh.Int64(4242)}}
	require.NoError(t, c.Handle(ctx, deleted))
	got, err = s.GetFormWithOwner(ctx, f.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Owner.InstallationID)
}

func TestUnhandledEventsIgnored(t *testing.T) {
	s, _, _ := seed(t)
	c := NewCleaner(s, nil, nil)
	assert.NoError(t, c.Handle(context.Background(), &gh.PingEvent{}))
	assert.NoError(t, c.Handle(context.Background(), &gh.IssuesEvent{Action: gh.String("opened")}))
}

func TestUploadValidation(t *testing.T) {
	s, _, _ := seed(t)
	u := NewUploader(&fakeObjects{}, s, time.Minute)
	u.schedule = func(time.Duration, func()) {}

	tests := []struct {
		name        string
		contentType string
		size        int64
		want        string
	}{
		{"empty", "image/png", 0, "No file provided"},
		{"not media", "application/pdf", 10, "Only images and videos are allowed"},
		{"large image", "image/png", MaxImageSize + 1, "File too large. Images must be under 3MB"},
		{"large video", "video/mp4", MaxVideoSize + 1, "File too large. Videos must be under 25MB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Upload(context.Background(), "f.bin", tt.contentType, tt.size, bytes.NewReader(nil))
			require.Error(t, err)
			assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
			assert.Equal(t, tt.want, apperror.PublicMessage(err))
		})
	}
}

func TestUploadDeletesOrphans(t *testing.T) {
	s, _, f := seed(t)
	ctx := context.Background()
	objects := &fakeObjects{}
	u := NewUploader(objects, s, 10*time.Minute)

	var pending []func()
	u.schedule = func(d time.Duration, fn func()) {
		assert.Equal(t, 10*time.Minute, d)
		pending = append(pending, fn)
	}

	usedURL, err := u.Upload(ctx, "used.png", "image/png", 10, bytes.NewReader([]byte("png")))
	require.NoError(t, err)
	assert.Equal(t, "https://bugs.example.com/bugspot/fixed-used.png", usedURL)
	_, err = u.Upload(ctx, "orphan.mp4", "video/mp4", 10, bytes.NewReader([]byte("mp4")))
	require.NoError(t, err)

	_, err = s.RecordSubmission(ctx, storage.Submission{FormID: f.ID, IssueNumber: 1, ScreenshotKey: "bugspot/fixed-used.png"})
	require.NoError(t, err)

	require.Len(t, pending, 2)
	for _, fn := range pending {
		fn()
	}
	assert.Equal(t, []string{"bugspot/fixed-orphan.mp4"}, objects.deleted)
}

func TestUploadStoreFailure(t *testing.T) {
	s, _, _ := seed(t)
	u := NewUploader(&fakeObjects{failPut: true}, s, time.Minute)
	u.schedule = func(time.Duration, func()) { t.Error("failed uploads must not schedule a check") }

	_, err := u.Upload(context.Background(), "a.png", "image/png", 10, bytes.NewReader([]byte("x")))
	assert.Equal(t, apperror.KindUpstream, apperror.KindOf(err))
	assert.Equal(t, "Upload failed", apperror.PublicMessage(err))
}

package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"quickdeploy/api/logging"
	"quickdeploy/api/model"
	"quickdeploy/api/retry"
)

const (
	DefaultAPIURL          = "https://api.github.com"
	DefaultMetadataTimeout = 10 * time.Second
	DefaultDownloadTimeout = 30 * time.Second

	archivePattern = ".archive-*.tar.gz"
)

var (
	ErrInvalidRepo  = errors.New("invalid repository name")
	ErrRepoNotFound = errors.New("repository not found")
	ErrUnauthorized = errors.New("repository access denied")
)

var repoPartRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ParseRepo validates an owner/name reference.
func ParseRepo(ref string) (model.Repo, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(ref), "/")
	if !ok || !repoPartRe.MatchString(owner) || !repoPartRe.MatchString(name) ||
		owner == "." || owner == ".." || name == "." || name == ".." {
		return model.Repo{}, fmt.Errorf("%w: %q", ErrInvalidRepo, ref)
	}
	return model.Repo{Owner: owner, Name: name}, nil
}

// StatusError is a non-success response from the source host.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

// Fetcher retrieves repository source trees from the GitHub REST API.
type Fetcher struct {
	BaseURL         string
	HTTPClient      *http.Client
	MetadataTimeout time.Duration
	DownloadTimeout time.Duration
	// Retry wraps each network call. The zero policy makes one attempt.
	Retry  retry.Policy
	Logger *slog.Logger
}

func NewFetcher(baseURL string) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Fetcher{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		HTTPClient:      &http.Client{},
		MetadataTimeout: DefaultMetadataTimeout,
		DownloadTimeout: DefaultDownloadTimeout,
		Logger:          slog.Default(),
	}
}

// VerifyAndFetch checks that repo is visible with credential, asks
// prepare for a workspace directory, and extracts the source tree into
// it. The workspace belongs to the caller; it is never removed here.
func (f *Fetcher) VerifyAndFetch(ctx context.Context, repo model.Repo, credential string, prepare func() (string, error)) (string, error) {
	if err := f.Verify(ctx, repo, credential); err != nil {
		return "", err
	}
	dir, err := prepare()
	if err != nil {
		return "", err
	}
	if err := f.Fetch(ctx, repo, credential, dir); err != nil {
		return dir, err
	}
	return dir, nil
}

// Verify looks the repository up on the source host.
func (f *Fetcher) Verify(ctx context.Context, repo model.Repo, credential string) error {
	if credential == "" {
		return ErrUnauthorized
	}
	return retry.Do(ctx, f.Retry, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, f.metadataTimeout())
		defer cancel()

		resp, err := f.get(ctx, "/repos/"+repo.String(), credential)
		if err != nil {
			return fmt.Errorf("lookup %s: %w", repo, err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		return checkStatus("lookup "+repo.String(), resp.StatusCode)
	})
}

// Fetch downloads the repository tarball into dir and unpacks it there,
// dropping the archive's synthetic top-level directory.
func (f *Fetcher) Fetch(ctx context.Context, repo model.Repo, credential, dir string) error {
	tmp, err := os.CreateTemp(dir, archivePattern)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	archive := tmp.Name()
	tmp.Close()

	err = retry.Do(ctx, f.Retry, func(ctx context.Context) error {
		return f.download(ctx, repo, credential, archive)
	})
	if err != nil {
		os.Remove(archive)
		return err
	}

	n, err := Extract(archive, dir)
	if err != nil {
		os.Remove(archive)
		return fmt.Errorf("extract %s: %w", repo, err)
	}
	if err := os.Remove(archive); err != nil {
		return fmt.Errorf("remove archive: %w", err)
	}
	logging.FromContext(ctx, f.Logger).Debug("source extracted", "repo", repo.String(), "entries", n)
	return nil
}

func (f *Fetcher) download(ctx context.Context, repo model.Repo, credential, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, f.downloadTimeout())
	defer cancel()

	resp, err := f.get(ctx, "/repos/"+repo.String()+"/tarball", credential)
	if err != nil {
		return fmt.Errorf("download %s: %w", repo, err)
	}
	defer resp.Body.Close()
	if err := checkStatus("download "+repo.String(), resp.StatusCode); err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("download %s: %w", repo, err)
	}
	return out.Close()
}

func (f *Fetcher) get(ctx context.Context, path, credential string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func checkStatus(op string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrRepoNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	default:
		return &StatusError{Op: op, Status: status}
	}
}

func (f *Fetcher) metadataTimeout() time.Duration {
	if f.MetadataTimeout > 0 {
		return f.MetadataTimeout
	}
	return DefaultMetadataTimeout
}

func (f *Fetcher) downloadTimeout() time.Duration {
	if f.DownloadTimeout > 0 {
		return f.DownloadTimeout
	}
	return DefaultDownloadTimeout
}


package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/gitlicense/internal/domain/port/driven"
)

// ErrNotAFile is returned by Get when the path names a directory.
var ErrNotAFile = errors.New("path is not a file")

// Get reads the file at path on the configured branch and returns its content
// and blob SHA. Returns driven.ErrBlobNotFound when the file does not exist.
func (c *Client) Get(ctx context.Context, path string) ([]byte, string, error) {
	file, dir, resp, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, &gh.RepositoryContentGetOptions{
		Ref: c.branch,
	})
	logRateLimit(resp, "contents.get")
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, "", driven.ErrBlobNotFound
		}
		return nil, "", fmt.Errorf("%w: reading %s: %w", driven.ErrTransport, path, err)
	}
	if file == nil || dir != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, ErrNotAFile)
	}

	sha := file.GetSHA()

	// The contents API omits bodies above 1 MB; fetch those by blob SHA.
	if file.GetEncoding() == "none" {
		raw, resp, err := c.gh.Git.GetBlobRaw(ctx, c.owner, c.repo, sha)
		logRateLimit(resp, "git.blob")
		if err != nil {
			return nil, "", fmt.Errorf("%w: reading blob %s of %s: %w", driven.ErrTransport, sha, path, err)
		}
		return raw, sha, nil
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("decoding %s: %w", path, err)
	}

	return []byte(content), sha, nil
}

// Put commits content to path on the configured branch. With an empty
// expectedVersion the file is created and must not exist yet; otherwise
// GitHub only accepts the write while the file's blob SHA still equals
// expectedVersion. A rejected precondition is reported as
// driven.ErrVersionConflict.
func (c *Client) Put(ctx context.Context, path string, content []byte, expectedVersion, message string) (string, error) {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: content,
		Branch:  gh.Ptr(c.branch),
	}

	var (
		res  *gh.RepositoryContentResponse
		resp *gh.Response
		err  error
	)
	if expectedVersion == "" {
		res, resp, err = c.gh.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
	} else {
		opts.SHA = gh.Ptr(expectedVersion)
		res, resp, err = c.gh.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
	}
	logRateLimit(resp, "contents.put")

	if err != nil {
		if isConflict(err, expectedVersion == "") {
			return "", fmt.Errorf("writing %s at %q: %w", path, expectedVersion, driven.ErrVersionConflict)
		}
		return "", fmt.Errorf("%w: writing %s: %w", driven.ErrTransport, path, err)
	}

	return res.GetContent().GetSHA(), nil
}

// isConflict reports whether a failed write lost a race. GitHub answers a
// stale SHA with 409; creating a file that already exists yields 422 because
// no SHA was supplied.
func isConflict(err error, creating bool) bool {
	switch statusCode(err) {
	case http.StatusConflict:
		return true
	case http.StatusUnprocessableEntity:
		if creating {
			return true
		}
		var ghErr *gh.ErrorResponse
		return errors.As(err, &ghErr) && strings.Contains(strings.ToLower(ghErr.Message), "sha")
	default:
		return false
	}
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"quickdeploy/api/model"
	"quickdeploy/api/retry"
)

const (
	reposPerPage = 100
	maxRepoPages = 10
)

// ListRepos returns the repositories visible to credential, most
// recently updated first.
func (f *Fetcher) ListRepos(ctx context.Context, credential string) ([]model.RepoSummary, error) {
	if credential == "" {
		return nil, ErrUnauthorized
	}
	var repos []model.RepoSummary
	for page := 1; page <= maxRepoPages; page++ {
		var batch []model.RepoSummary
		path := fmt.Sprintf("/user/repos?sort=updated&per_page=%d&page=%d", reposPerPage, page)
		err := retry.Do(ctx, f.Retry, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, f.metadataTimeout())
			defer cancel()

			resp, err := f.get(ctx, path, credential)
			if err != nil {
				return fmt.Errorf("list repos: %w", err)
			}
			defer resp.Body.Close()
			if err := checkStatus("list repos", resp.StatusCode); err != nil {
				io.Copy(io.Discard, resp.Body)
				return err
			}
			batch = batch[:0]
			return json.NewDecoder(resp.Body).Decode(&batch)
		})
		if err != nil {
			return nil, err
		}
		repos = append(repos, batch...)
		if len(batch) < reposPerPage {
			break
		}
	}
	return repos, nil
}

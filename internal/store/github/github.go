// Package github is the repository-as-database mirror: every household key
// becomes a JSON file in a git repository and every save is a commit. Like
// the Firestore mirror it replaces the file unconditionally, last writer
// wins.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/google/go-github/v66/github"

	"tirelire/internal/core"
	"tirelire/internal/store"
)

type Store struct {
	client *github.Client
	owner  string
	repo   string
	branch string
	dir    string
}

var _ store.Store = (*Store)(nil)

// NewFromEnv builds a GitHub mirror from environment variables.
// Required: GITHUB_TOKEN and GITHUB_REPO as "owner/name". Optional:
// GITHUB_BRANCH (default "main"), GITHUB_DATA_DIR (default "data").
func NewFromEnv() (*Store, error) {
	token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	if token == "" {
		return nil, errors.New("missing GITHUB_TOKEN")
	}
	repoSpec := strings.TrimSpace(os.Getenv("GITHUB_REPO"))
	owner, repo, ok := strings.Cut(repoSpec, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid GITHUB_REPO %q: want owner/name", repoSpec)
	}
	branch := strings.TrimSpace(os.Getenv("GITHUB_BRANCH"))
	if branch == "" {
		branch = "main"
	}
	dir := strings.TrimSpace(os.Getenv("GITHUB_DATA_DIR"))
	if dir == "" {
		dir = "data"
	}
	return &Store{
		client: github.NewClient(nil).WithAuthToken(token),
		owner:  owner,
		repo:   repo,
		branch: branch,
		dir:    dir,
	}, nil
}

func (s *Store) filePath(key string) string {
	return path.Join(s.dir, key+".json")
}

func (s *Store) Load(ctx context.Context, householdKey string) (core.AppData, error) {
	payload, _, err := s.getFile(ctx, householdKey)
	if err != nil {
		return core.AppData{}, err
	}
	var data core.AppData
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return core.AppData{}, fmt.Errorf("decode household %s: %w", householdKey, err)
	}
	return data, nil
}

func (s *Store) Save(ctx context.Context, householdKey string, data core.AppData) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode household %s: %w", householdKey, err)
	}
	msg := fmt.Sprintf("tirelire: %s revision %d", householdKey, data.Revision)
	return s.putFile(ctx, householdKey, payload, msg)
}

func (s *Store) LoadReferences(ctx context.Context, referenceKey string) ([]core.ReferenceBudget, error) {
	payload, _, err := s.getFile(ctx, referenceKey)
	if err != nil {
		return nil, err
	}
	var refs []core.ReferenceBudget
	if err := json.Unmarshal([]byte(payload), &refs); err != nil {
		return nil, fmt.Errorf("decode references %s: %w", referenceKey, err)
	}
	return refs, nil
}

func (s *Store) SaveReferences(ctx context.Context, referenceKey string, refs []core.ReferenceBudget) error {
	payload, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode references %s: %w", referenceKey, err)
	}
	return s.putFile(ctx, referenceKey, payload, "tirelire: "+referenceKey)
}

// getFile returns the decoded file content and its blob SHA, needed when
// updating an existing file.
func (s *Store) getFile(ctx context.Context, key string) (string, string, error) {
	fc, _, resp, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, s.filePath(key),
		&github.RepositoryContentGetOptions{Ref: s.branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", "", store.ErrNotFound
		}
		return "", "", fmt.Errorf("get %s: %w", s.filePath(key), err)
	}
	if fc == nil {
		return "", "", fmt.Errorf("%s is not a file", s.filePath(key))
	}
	content, err := fc.GetContent()
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", s.filePath(key), err)
	}
	return content, fc.GetSHA(), nil
}

func (s *Store) putFile(ctx context.Context, key string, payload []byte, message string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: payload,
		Branch:  github.String(s.branch),
	}

	_, sha, err := s.getFile(ctx, key)
	switch {
	case err == nil:
		opts.SHA = github.String(sha)
		_, _, err = s.client.Repositories.UpdateFile(ctx, s.owner, s.repo, s.filePath(key), opts)
	case errors.Is(err, store.ErrNotFound):
		_, _, err = s.client.Repositories.CreateFile(ctx, s.owner, s.repo, s.filePath(key), opts)
	default:
		return err
	}
	if err != nil {
		return fmt.Errorf("commit %s: %w", s.filePath(key), err)
	}
	return nil
}

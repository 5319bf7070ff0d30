// Package gitea pushes produced result files to a Gitea repository as
// release assets (spec.md §4.9 "Result archiving"), grounded on the
// teacher's forge.GiteaGetRepo client-construction idiom, inverted from
// archive retrieval to archive upload.
package gitea

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"code.gitea.io/sdk/gitea"
)

// Archiver uploads files to one owner/repo as release assets.
type Archiver struct {
	client *gitea.Client
	owner  string
	repo   string
}

// New connects to the Gitea instance at url and scopes the Archiver to
// owner/repo, matching the RESULT_ARCHIVE_REPO "owner/repo" convention.
func New(url, token, owner, repo string) (*Archiver, error) {
	client, err := gitea.NewClient(url, gitea.SetToken(token))
	if err != nil {
		return nil, fmt.Errorf("archive/gitea: create client: %w", err)
	}
	return &Archiver{client: client, owner: owner, repo: repo}, nil
}

// ArchiveFiles uploads each local path in files as an attachment of the
// release tagged tagName, creating that release first if it doesn't exist.
func (a *Archiver) ArchiveFiles(tagName string, files []string) error {
	release, err := a.releaseFor(tagName)
	if err != nil {
		return err
	}
	for _, path := range files {
		if err := a.uploadFile(release.ID, path); err != nil {
			return fmt.Errorf("archive/gitea: upload %s: %w", path, err)
		}
	}
	return nil
}

func (a *Archiver) releaseFor(tagName string) (*gitea.Release, error) {
	release, resp, err := a.client.GetReleaseByTag(a.owner, a.repo, tagName)
	if err == nil {
		return release, nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("archive/gitea: get release %s: %w", tagName, err)
	}

	release, _, err = a.client.CreateRelease(a.owner, a.repo, gitea.CreateReleaseOption{
		TagName: tagName,
		Title:   tagName,
		Note:    "results produced by a compss-core run",
	})
	if err != nil {
		return nil, fmt.Errorf("archive/gitea: create release %s: %w", tagName, err)
	}
	return release, nil
}

func (a *Archiver) uploadFile(releaseID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, _, err = a.client.CreateReleaseAttachment(a.owner, a.repo, releaseID, f, filepath.Base(path))
	return err
}

// Package workspace provides the durable, session-scoped artifact store
// used for file-like tool outputs such as generated slide images.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
)

// Artifact describes one stored file.
type Artifact struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArtifactContent is an Artifact plus optionally loaded content and URL.
type ArtifactContent struct {
	Artifact
	Content   []byte `json:"content,omitempty"`
	PublicURL string `json:"public_url,omitempty"`
}

var (
	// ErrNotFound is returned for unknown workspaces or artifact paths.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidPath rejects escapes out of the workspace root.
	ErrInvalidPath = errors.New("invalid artifact path")
)

// Store is the durable workspace/artifact store surface. Writes are
// last-write-wins at artifact-path granularity; concurrent writers are an
// accepted race, not serialized here.
type Store interface {
	CreateWorkspace(ctx context.Context) (string, error)
	UpsertArtifact(ctx context.Context, wsID, artifactPath string, data []byte, mimeType string) (string, error)
	ListArtifacts(ctx context.Context, wsID, pattern string) ([]Artifact, []string, error)
	GetArtifact(ctx context.Context, wsID, artifactPath string, withContent, withURL bool) (*ArtifactContent, error)
	DeleteArtifact(ctx context.Context, wsID, artifactPath string) error
	DeleteWorkspace(ctx context.Context, wsID string) error
}

// DiskStore implements Store on the local filesystem.
type DiskStore struct {
	mu      sync.RWMutex
	baseDir string

	// publicBaseURL prefixes minted artifact URLs,
	// e.g. "http://localhost:8080/artifacts".
	publicBaseURL string
}

// NewDiskStore creates a DiskStore rooted at baseDir.
func NewDiskStore(baseDir, publicBaseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	return &DiskStore{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// CreateWorkspace allocates a new workspace record.
func (s *DiskStore) CreateWorkspace(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "ws-" + uuid.NewString()
	if err := os.MkdirAll(filepath.Join(s.baseDir, id), 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return id, nil
}

// cleanPath normalizes an artifact path and rejects traversal.
func cleanPath(artifactPath string) (string, error) {
	p := path.Clean("/" + strings.ReplaceAll(artifactPath, "\\", "/"))
	p = strings.TrimPrefix(p, "/")
	if p == "" || p == "." || strings.HasPrefix(p, "..") {
		return "", ErrInvalidPath
	}
	return p, nil
}

func (s *DiskStore) wsDir(wsID string) string {
	return filepath.Join(s.baseDir, wsID)
}

// UpsertArtifact writes (or overwrites) one artifact and returns its path.
func (s *DiskStore) UpsertArtifact(_ context.Context, wsID, artifactPath string, data []byte, mimeType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.wsDir(wsID)); err != nil {
		return "", ErrNotFound
	}
	p, err := cleanPath(artifactPath)
	if err != nil {
		return "", err
	}

	full := filepath.Join(s.wsDir(wsID), filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	_ = mimeType // derived from the extension on read
	return p, nil
}

// ListArtifacts returns artifacts matching a doublestar pattern plus the
// top-level directories under the pattern's static prefix. An empty
// pattern lists everything.
func (s *DiskStore) ListArtifacts(_ context.Context, wsID, pattern string) ([]Artifact, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root := s.wsDir(wsID)
	if _, err := os.Stat(root); err != nil {
		return nil, nil, ErrNotFound
	}
	if pattern == "" {
		pattern = "**/*"
	}

	var artifacts []Artifact
	dirSet := map[string]bool{}

	err := filepath.WalkDir(root, func(fp string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, fp)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			dirSet[rel] = true
			return nil
		}

		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		artifacts = append(artifacts, Artifact{
			Path:      rel,
			Size:      info.Size(),
			MimeType:  mimeFor(rel),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })

	dirs := make([]string, 0, len(dirSet))
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	return artifacts, dirs, nil
}

// GetArtifact fetches one artifact, optionally with content and public URL.
func (s *DiskStore) GetArtifact(_ context.Context, wsID, artifactPath string, withContent, withURL bool) (*ArtifactContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := cleanPath(artifactPath)
	if err != nil {
		return nil, err
	}
	full := filepath.Join(s.wsDir(wsID), filepath.FromSlash(p))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return nil, ErrNotFound
	}

	out := &ArtifactContent{Artifact: Artifact{
		Path:      p,
		Size:      info.Size(),
		MimeType:  mimeFor(p),
		UpdatedAt: info.ModTime(),
	}}

	if withContent {
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read artifact: %w", err)
		}
		out.Content = data
	}
	if withURL {
		out.PublicURL = s.PublicURL(wsID, p)
	}
	return out, nil
}

// PublicURL mints the externally servable URL for an artifact path.
func (s *DiskStore) PublicURL(wsID, artifactPath string) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return s.publicBaseURL + "/" + wsID + "/" + artifactPath
}

// DeleteArtifact removes one artifact.
func (s *DiskStore) DeleteArtifact(_ context.Context, wsID, artifactPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := cleanPath(artifactPath)
	if err != nil {
		return err
	}
	full := filepath.Join(s.wsDir(wsID), filepath.FromSlash(p))
	if _, err := os.Stat(full); err != nil {
		return ErrNotFound
	}
	return os.Remove(full)
}

// DeleteWorkspace removes a workspace and everything in it.
func (s *DiskStore) DeleteWorkspace(_ context.Context, wsID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.wsDir(wsID))
}

func mimeFor(p string) string {
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}

var _ Store = (*DiskStore)(nil)

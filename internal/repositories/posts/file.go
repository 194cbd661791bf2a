package posts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/filex"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// FileRepository keeps all records in a pretty-printed JSON array. Every
// write is a read-modify-write of the whole file under an in-process mutex
// and a lock file, finished by an atomic rename.
type FileRepository struct {
	path     string
	lockPath string
	lockOpts filex.LockOptions

	mu sync.RWMutex
}

// NewFileRepository opens (creating if needed) the JSON store at path.
func NewFileRepository(path string, lockOpts filex.LockOptions) (*FileRepository, error) {
	if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, common.Collaborator("store", err)
	}
	r := &FileRepository{path: path, lockPath: path + ".lock", lockOpts: lockOpts}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := filex.WriteFileAtomic(path, []byte("[]\n"), 0o600); err != nil {
			return nil, common.Collaborator("store", err)
		}
	} else if err != nil {
		return nil, common.Collaborator("store", err)
	}
	return r, nil
}

// Path returns the backing file.
func (r *FileRepository) Path() string {
	return r.path
}

func (r *FileRepository) load() ([]*models.Post, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, common.Collaborator("store", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var posts []*models.Post
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrMalformedPayload, r.path, err)
	}
	return posts, nil
}

func (r *FileRepository) save(posts []*models.Post) error {
	if posts == nil {
		posts = []*models.Post{}
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	data = append(data, '\n')
	if err := filex.WriteFileAtomic(r.path, data, 0o600); err != nil {
		return common.Collaborator("store", err)
	}
	return nil
}

// mutate runs fn over the full record set and persists the result. Nothing
// is written when fn fails.
func (r *FileRepository) mutate(ctx context.Context, fn func([]*models.Post) ([]*models.Post, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, err := filex.Lock(ctx, r.lockPath, r.lockOpts)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil {
		return common.Collaborator("store", err)
	}
	defer func() { _ = lock.Unlock() }()

	posts, err := r.load()
	if err != nil {
		return err
	}
	posts, err = fn(posts)
	if err != nil {
		return err
	}
	return r.save(posts)
}

func (r *FileRepository) read(ctx context.Context) ([]*models.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.load()
}

func indexByID(posts []*models.Post, id string) int {
	for i, p := range posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func approvalTaken(posts []*models.Post, approvalID, exceptID string) bool {
	if approvalID == "" {
		return false
	}
	for _, p := range posts {
		if p.ApprovalID == approvalID && p.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *FileRepository) Append(ctx context.Context, p *models.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.mutate(ctx, func(posts []*models.Post) ([]*models.Post, error) {
		if indexByID(posts, p.ID) >= 0 {
			return nil, fmt.Errorf("post %s: %w", p.ID, common.ErrDuplicateID)
		}
		if approvalTaken(posts, p.ApprovalID, p.ID) {
			return nil, fmt.Errorf("approval %s: %w", p.ApprovalID, common.ErrDuplicateID)
		}
		return append(posts, p.Clone()), nil
	})
}

func (r *FileRepository) UpdateStatus(ctx context.Context, id string, status models.Status, upd models.StatusUpdate) error {
	return r.mutate(ctx, func(posts []*models.Post) ([]*models.Post, error) {
		i := indexByID(posts, id)
		if i < 0 {
			return nil, notFound("id", id)
		}
		if approvalTaken(posts, upd.ApprovalID, id) {
			return nil, fmt.Errorf("approval %s: %w", upd.ApprovalID, common.ErrDuplicateID)
		}
		if err := applyStatus(posts[i], status, upd); err != nil {
			return nil, err
		}
		return posts, nil
	})
}

func (r *FileRepository) Transition(ctx context.Context, id string, from []models.Status, to models.Status, upd models.StatusUpdate) (*models.Post, error) {
	var updated *models.Post
	err := r.mutate(ctx, func(posts []*models.Post) ([]*models.Post, error) {
		i := indexByID(posts, id)
		if i < 0 {
			return nil, notFound("id", id)
		}
		if approvalTaken(posts, upd.ApprovalID, id) {
			return nil, fmt.Errorf("approval %s: %w", upd.ApprovalID, common.ErrDuplicateID)
		}
		if err := applyTransition(posts[i], from, to, upd); err != nil {
			return nil, err
		}
		updated = posts[i].Clone()
		return posts, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *FileRepository) UpdateContent(ctx context.Context, id string, upd models.ContentUpdate) error {
	return r.mutate(ctx, func(posts []*models.Post) ([]*models.Post, error) {
		i := indexByID(posts, id)
		if i < 0 {
			return nil, notFound("id", id)
		}
		if err := applyContent(posts[i], upd); err != nil {
			return nil, err
		}
		return posts, nil
	})
}

func (r *FileRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	posts, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexByID(posts, id); i >= 0 {
		return posts[i], nil
	}
	return nil, notFound("id", id)
}

func (r *FileRepository) FindByApprovalID(ctx context.Context, approvalID string) (*models.Post, error) {
	if approvalID == "" {
		return nil, notFound("approval id", approvalID)
	}
	posts, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		if p.ApprovalID == approvalID {
			return p, nil
		}
	}
	return nil, notFound("approval id", approvalID)
}

func (r *FileRepository) ListByStatus(ctx context.Context, status models.Status) ([]*models.Post, error) {
	posts, err := r.read(ctx)
	if err != nil {
		return nil, err
	}
	var out []*models.Post
	for _, p := range posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *FileRepository) Close() error {
	return nil
}

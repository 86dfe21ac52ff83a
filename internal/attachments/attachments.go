// Package attachments defines the receipt storage collaborator.
//
// Uploads happen before the ledger's atomic unit; when that unit fails the
// ledger calls Delete for each uploaded file as compensation, so no orphaned
// attachment survives a rolled-back expense.
package attachments

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/krsoni/homeledger/internal/models"
)

// Store uploads and deletes attachment files.
type Store interface {
	// Upload stores the file and returns its reference.
	Upload(ctx context.Context, name string, r io.Reader) (models.Attachment, error)

	// Delete removes the file by its public ID. Returns false when no such
	// file existed.
	Delete(ctx context.Context, publicID string) (bool, error)
}

// DiskStore keeps attachments on the local filesystem under a base directory,
// served at baseURL.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates the base directory if needed.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create attachments directory: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: baseURL}, nil
}

// Upload writes the file under a generated public ID that keeps the original
// extension.
func (s *DiskStore) Upload(_ context.Context, name string, r io.Reader) (models.Attachment, error) {
	publicID := uuid.New().String() + filepath.Ext(name)
	path := filepath.Join(s.dir, publicID)

	f, err := os.Create(path)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to create attachment file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return models.Attachment{}, fmt.Errorf("failed to write attachment: %w", err)
	}

	return models.Attachment{
		PublicID:   publicID,
		URL:        s.baseURL + "/attachments/" + publicID,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Delete removes the stored file.
func (s *DiskStore) Delete(_ context.Context, publicID string) (bool, error) {
	// publicID is store-generated, but guard against traversal anyway.
	if filepath.Base(publicID) != publicID {
		return false, fmt.Errorf("invalid public id: %s", publicID)
	}
	err := os.Remove(filepath.Join(s.dir, publicID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete attachment: %w", err)
	}
	return true, nil
}

// Dir returns the directory files are stored in, for static serving.
func (s *DiskStore) Dir() string { return s.dir }

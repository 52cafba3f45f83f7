package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/templui/goalstake/internal/model"
	"github.com/templui/goalstake/internal/repository"
	"github.com/templui/goalstake/internal/storage"
	"github.com/templui/goalstake/internal/validation"
)

// FileService stores proof images and hands out short-lived URLs for them.
type FileService struct {
	fileRepo repository.FileRepository
	storage  storage.Storage
}

func NewFileService(fileRepo repository.FileRepository, storage storage.Storage) *FileService {
	return &FileService{
		fileRepo: fileRepo,
		storage:  storage,
	}
}

// UploadProofImage stores an image as evidence for goal and creates a database record.
// Note: File validation (type, size, content) should be done by the caller; mimeType is
// the type detected from the content, not the client's Content-Type header.
func (s *FileService) UploadProofImage(ctx context.Context, goal *model.Goal, file io.Reader, header *multipart.FileHeader, mimeType string) (*model.File, error) {
	filename := uuid.NewString() + validation.DetectedExtension(mimeType)
	storagePath := path.Join("proofs", goal.ID, filename)

	err := s.storage.Save(ctx, storagePath, file, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	fileModel := &model.File{
		ID:           uuid.NewString(),
		Owner:        goal.Owner,
		GoalID:       goal.ID,
		Type:         model.FileTypeProofImage,
		Filename:     filename,
		OriginalName: header.Filename,
		MimeType:     mimeType,
		Size:         header.Size,
		StoragePath:  storagePath,
		CreatedAt:    time.Now().UTC(),
	}

	err = s.fileRepo.Create(ctx, fileModel)
	if err != nil {
		// If DB insert fails, try to cleanup the uploaded file
		delErr := s.storage.Delete(ctx, storagePath)
		if delErr != nil {
			slog.Error("failed to delete file from storage during cleanup", "error", delErr, "path", storagePath)
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	slog.Info("proof image uploaded", "goal_id", goal.ID, "file_id", fileModel.ID, "size", fileModel.Size)
	return fileModel, nil
}

// ProofImageURL resolves an image reference attached to a proof of goalID.
// An image uploaded for another goal is reported as not found.
func (s *FileService) ProofImageURL(ctx context.Context, goalID, fileID string) (string, error) {
	file, err := s.fileRepo.ByID(ctx, fileID)
	if err != nil {
		return "", err
	}
	if file.GoalID != goalID || file.Type != model.FileTypeProofImage {
		return "", repository.ErrFileNotFound
	}

	return s.storage.URL(ctx, file.StoragePath)
}

// ProofImages lists the images uploaded for a goal, newest first.
func (s *FileService) ProofImages(ctx context.Context, goalID string) ([]*model.File, error) {
	return s.fileRepo.ByGoal(ctx, goalID)
}

package client

import (
	"context"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
)

// API is the backend contract used by the upload orchestrator.
type API interface {
	RequestUpload(ctx context.Context, req UploadRequest) (*UploadTicket, error)
	Confirm(ctx context.Context, photoID, fileID, url string) (*models.Photo, error)
	DeletePhoto(ctx context.Context, photoID string) error
	Ping(ctx context.Context) error
}

// Storage is the direct-upload contract of the object storage provider.
type Storage interface {
	Upload(ctx context.Context, params models.SignedUploadParams, image []byte, mimeType string) (models.StorageResult, error)
}

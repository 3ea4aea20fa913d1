package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/common"
)

// Requester is the part of the transport BackendClient needs.
type Requester interface {
	Do(ctx context.Context, method, path string, body, out any) error
	DoPublic(ctx context.Context, method, path string, body, out any) error
}

// UploadRequest is the capture metadata sent in step 1.
type UploadRequest struct {
	FileName   string    `json:"filename"`
	MimeType   string    `json:"mimeType"`
	Size       int       `json:"size"`
	CapturedAt time.Time `json:"capturedAt"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	LocationID string    `json:"locationId"`
	ClientID   string    `json:"clientId"`
}

// UploadTicket is the backend answer to step 1.
type UploadTicket struct {
	PhotoID string
	Params  models.SignedUploadParams
}

type uploadTicketResponse struct {
	PhotoID     string `json:"photoId"`
	UploadToken string `json:"uploadToken"`
	Signature   string `json:"signature"`
	Expire      int64  `json:"expire"`
	FileName    string `json:"fileName"`
	Folder      string `json:"folder"`
	PublicKey   string `json:"publicKey"`
}

type confirmRequest struct {
	FileID string `json:"imagekitFileId"`
	URL    string `json:"imagekitUrl"`
}

type confirmResponse struct {
	Photo *models.Photo `json:"photo"`
}

type BackendClient struct {
	t Requester
}

func NewBackendClient(t Requester) *BackendClient {
	return &BackendClient{t: t}
}

func (c *BackendClient) RequestUpload(ctx context.Context, req UploadRequest) (*UploadTicket, error) {
	var resp uploadTicketResponse
	if err := c.t.Do(ctx, http.MethodPost, "/api/photos/request-upload", req, &resp); err != nil {
		return nil, err
	}

	if resp.PhotoID == "" || resp.UploadToken == "" || resp.Signature == "" || resp.Expire == 0 {
		return nil, fmt.Errorf("%w: request-upload answer lacks photo id or signature", common.ErrInvalidUploadResponse)
	}

	return &UploadTicket{
		PhotoID: resp.PhotoID,
		Params: models.SignedUploadParams{
			UploadToken: resp.UploadToken,
			Signature:   resp.Signature,
			Expire:      time.Unix(resp.Expire, 0).UTC(),
			FileName:    resp.FileName,
			Folder:      resp.Folder,
			PublicKey:   resp.PublicKey,
		},
	}, nil
}

// Confirm finalises photoID. The backend deduplicates by photo id, so
// repeating a confirm that timed out is safe.
func (c *BackendClient) Confirm(ctx context.Context, photoID, fileID, fileURL string) (*models.Photo, error) {
	var resp confirmResponse
	path := "/api/photos/" + url.PathEscape(photoID) + "/confirm"
	if err := c.t.Do(ctx, http.MethodPost, path, confirmRequest{FileID: fileID, URL: fileURL}, &resp); err != nil {
		return nil, err
	}
	if resp.Photo == nil || resp.Photo.ID == "" {
		return nil, fmt.Errorf("%w: confirm answer has no photo", common.ErrInvalidUploadResponse)
	}
	return resp.Photo, nil
}

// DeletePhoto removes a placeholder created by step 1.
func (c *BackendClient) DeletePhoto(ctx context.Context, photoID string) error {
	return c.t.Do(ctx, http.MethodDelete, "/api/photos/"+url.PathEscape(photoID), nil, nil)
}

func (c *BackendClient) Ping(ctx context.Context) error {
	return c.t.DoPublic(ctx, http.MethodGet, "/api/health", nil, nil)
}

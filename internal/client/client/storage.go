package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/client/transport"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/netx"
)

type storageResponse struct {
	FileID   string `json:"fileId"`
	URL      string `json:"url"`
	FilePath string `json:"filePath"`
	Name     string `json:"name"`
}

// StorageClient uploads directly to the object storage provider using the
// signed parameters from step 1. It carries no backend credentials.
type StorageClient struct {
	endpoint string
	http     *http.Client
}

func NewStorageClient(endpoint string, httpClient *http.Client) *StorageClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: transport.DefaultTimeout}
	}
	return &StorageClient{endpoint: endpoint, http: httpClient}
}

// Upload posts image with the signed fields. A non-2xx answer is an error;
// a 2xx answer is interpreted, and one that does not identify the stored
// file comes back as models.StorageMalformed.
func (c *StorageClient) Upload(ctx context.Context, p models.SignedUploadParams, image []byte, mimeType string) (models.StorageResult, error) {
	fields := map[string]string{
		"fileName":          p.FileName,
		"folder":            p.Folder,
		"token":             p.UploadToken,
		"signature":         p.Signature,
		"expire":            strconv.FormatInt(p.Expire.Unix(), 10),
		"publicKey":         p.PublicKey,
		"useUniqueFileName": "false",
	}

	body, err := netx.PostMultipart(ctx, c.http, c.endpoint, fields, netx.FilePart{
		Field:       "file",
		FileName:    p.FileName,
		ContentType: mimeType,
		Data:        image,
	})
	if err != nil {
		var se *netx.StatusError
		if errors.As(err, &se) {
			kind := transport.Classify(se.Code)
			if errors.Is(kind, common.ErrUnauthorized) {
				// The provider judges the signature, not the session.
				kind = common.ErrRejected
			}
			return nil, fmt.Errorf("%w: storage upload: %w", kind, err)
		}
		return nil, transport.NetworkError(ctx, "storage upload", err)
	}

	return InterpretStorageResponse(body), nil
}

// InterpretStorageResponse decides whether a 2xx provider body proves the
// file was stored.
func InterpretStorageResponse(body []byte) models.StorageResult {
	var r storageResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return models.StorageMalformed{Reason: "undecodable body: " + err.Error(), Body: body}
	}
	switch {
	case r.FileID == "":
		return models.StorageMalformed{Reason: "empty fileId", Body: body}
	case r.URL == "":
		return models.StorageMalformed{Reason: "empty url", Body: body}
	}
	return models.StorageSuccess{FileID: r.FileID, URL: r.URL, FilePath: r.FilePath}
}

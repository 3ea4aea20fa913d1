package models

import (
	"image"
	"path"
	"time"

	"github.com/google/uuid"
)

// Capture is a freshly taken photo plus its metadata, before compression.
type Capture struct {
	Image      image.Image
	FileName   string
	LocationID string
	Latitude   *float64
	Longitude  *float64
	CapturedAt time.Time
}

// UploadStage records how far a job got through the upload protocol.
type UploadStage string

const (
	// StagePending: nothing exists on the backend yet.
	StagePending UploadStage = "pending"
	// StageRequested: the photo placeholder and signed params exist.
	StageRequested UploadStage = "requested"
	// StageStored: the provider holds the file; only confirmation is left.
	StageStored UploadStage = "stored"
)

// SignedUploadParams are the single-use, time-boxed fields that authorise
// one direct upload to the storage provider.
type SignedUploadParams struct {
	UploadToken string    `json:"upload_token"`
	Signature   string    `json:"signature"`
	Expire      time.Time `json:"expire"`
	FileName    string    `json:"file_name"`
	Folder      string    `json:"folder"`
	PublicKey   string    `json:"public_key"`
}

// TargetPath is the provider-side path the file will be stored under.
func (p SignedUploadParams) TargetPath() string {
	return path.Join("/", p.Folder, p.FileName)
}

// ExpiredAt reports whether the signature window has closed.
func (p SignedUploadParams) ExpiredAt(now time.Time) bool {
	return !now.Before(p.Expire)
}

// UploadJob is an immutable snapshot of one capture's progress through the
// upload protocol. Progress is recorded by deriving a new snapshot; the
// queue replaces the stored snapshot as a whole.
type UploadJob struct {
	ClientID   uuid.UUID
	Image      []byte
	MimeType   string
	FileName   string
	LocationID string
	Latitude   *float64
	Longitude  *float64
	CapturedAt time.Time

	RetryCount int
	LastError  string

	Stage   UploadStage
	PhotoID string
	Params  *SignedUploadParams
	FileID  string
	FileURL string
}

// Requested records a successful request-upload step.
func (j UploadJob) Requested(photoID string, params SignedUploadParams) UploadJob {
	j.Stage = StageRequested
	j.PhotoID = photoID
	j.Params = &params
	j.FileID, j.FileURL = "", ""
	return j
}

// Stored records a successful direct upload. The signed params are spent.
func (j UploadJob) Stored(fileID, url string) UploadJob {
	j.Stage = StageStored
	j.Params = nil
	j.FileID = fileID
	j.FileURL = url
	return j
}

// Restarted drops a spent or expired signature so the next attempt begins
// with a fresh request-upload step.
func (j UploadJob) Restarted() UploadJob {
	j.Stage = StagePending
	j.PhotoID = ""
	j.Params = nil
	j.FileID, j.FileURL = "", ""
	return j
}

// Failed records one more failed attempt.
func (j UploadJob) Failed(err error) UploadJob {
	j.RetryCount++
	if err != nil {
		j.LastError = err.Error()
	}
	return j
}

// Photo is the finalised backend record.
type Photo struct {
	ID         string    `json:"id"`
	FilePath   string    `json:"filePath"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// StorageResult is the interpreted answer of the storage provider to a
// direct upload. It is either StorageSuccess or StorageMalformed.
type StorageResult interface {
	storageResult()
}

// StorageSuccess means the provider stored the file and identified it.
type StorageSuccess struct {
	FileID   string
	URL      string
	FilePath string
}

// StorageMalformed means the provider answered 2xx but the answer does not
// prove the file exists (empty id or url, undecodable body).
type StorageMalformed struct {
	Reason string
	Body   []byte
}

func (StorageSuccess) storageResult()   {}
func (StorageMalformed) storageResult() {}

// UploadOutcome is the result of one queued job during a replay.
type UploadOutcome struct {
	ClientID uuid.UUID
	FileName string
	Photo    *Photo
	Err      error
}

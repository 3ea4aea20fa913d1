package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dmitrijs2005/geosnap/internal/client/models"
	"github.com/dmitrijs2005/geosnap/internal/common"
	"github.com/dmitrijs2005/geosnap/internal/imaging"
)

var errUsageUpload = errors.New("usage: upload <path> <location-id> [latitude longitude]")

type uploadArgs struct {
	path       string
	locationID string
	lat, lng   *float64
}

func parseUploadArgs(args []string) (uploadArgs, error) {
	if len(args) != 2 && len(args) != 4 {
		return uploadArgs{}, errUsageUpload
	}
	ua := uploadArgs{path: args[0], locationID: args[1]}
	if ua.locationID == "" {
		return uploadArgs{}, errUsageUpload
	}
	if len(args) == 4 {
		lat, err := strconv.ParseFloat(args[2], 64)
		if err != nil || lat < -90 || lat > 90 {
			return uploadArgs{}, fmt.Errorf("invalid latitude %q", args[2])
		}
		lng, err := strconv.ParseFloat(args[3], 64)
		if err != nil || lng < -180 || lng > 180 {
			return uploadArgs{}, fmt.Errorf("invalid longitude %q", args[3])
		}
		ua.lat, ua.lng = &lat, &lng
	}
	return ua, nil
}

// loadCapture decodes the image at ua.path. The file's modification time
// stands in for the capture time.
func loadCapture(ua uploadArgs) (models.Capture, error) {
	f, err := os.Open(ua.path)
	if err != nil {
		return models.Capture{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.Capture{}, err
	}

	img, _, err := imaging.Decode(f)
	if err != nil {
		return models.Capture{}, err
	}

	return models.Capture{
		Image:      img,
		FileName:   filepath.Base(ua.path),
		LocationID: ua.locationID,
		Latitude:   ua.lat,
		Longitude:  ua.lng,
		CapturedAt: info.ModTime().UTC(),
	}, nil
}

func (a *App) Upload(ctx context.Context, args []string) error {
	if !a.isLoggedIn() {
		printlnFn("Please log in first.")
		return nil
	}

	ua, err := parseUploadArgs(args)
	if err != nil {
		return err
	}

	capture, err := loadCapture(ua)
	if err != nil {
		return fmt.Errorf("read %s: %w", ua.path, err)
	}

	photo, err := a.uploads.Submit(ctx, capture)
	var partial *common.PartialUploadError
	switch {
	case err == nil:
		printlnFn(fmt.Sprintf("Uploaded %s as photo %s (%s)", capture.FileName, photo.ID, photo.URL))
		return nil
	case errors.Is(err, common.ErrQueued):
		printlnFn(fmt.Sprintf("Could not reach the server; %s is queued and will be retried.", capture.FileName))
		return nil
	case errors.As(err, &partial):
		return fmt.Errorf("upload failed after placeholder %s was created: %w", partial.PhotoID, partial.Cause)
	}
	return err
}

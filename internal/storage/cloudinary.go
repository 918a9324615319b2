package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Uploader publishes a local file and returns its remote URL.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// CloudinaryUploader uploads artifacts into one Cloudinary folder. The
// public id is the file name without its extension.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryUploader builds an uploader from account credentials.
func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	if strings.TrimSpace(cloudName) == "" || strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return nil, errors.New("cloudinary credentials are incomplete")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	return &CloudinaryUploader{cld: cld, folder: strings.Trim(folder, "/")}, nil
}

// Upload sends the file at path.
func (u *CloudinaryUploader) Upload(ctx context.Context, path string) (string, error) {
	base := filepath.Base(path)
	publicID := strings.TrimSuffix(base, filepath.Ext(base))
	resp, err := u.cld.Upload.Upload(ctx, path, uploader.UploadParams{
		PublicID:  publicID,
		Folder:    u.folder,
		Overwrite: api.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload %s: %w", base, err)
	}
	if resp == nil {
		return "", fmt.Errorf("cloudinary upload %s: empty response", base)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload %s: %s", base, resp.Error.Message)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload %s: response has no url", base)
	}
	return resp.SecureURL, nil
}

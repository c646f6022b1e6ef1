package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/models"
)

// File is one piece of evidence selected by the driver.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Uploader stores a file under folder and reports the outcome. It never
// returns an error; failures are carried in the result.
type Uploader interface {
	Upload(ctx context.Context, file File, folder string) models.UploadResult
}

// HTTPUploader talks to a bucket-style object storage HTTP API.
type HTTPUploader struct {
	baseURL    string
	bucket     string
	key        string
	httpClient *http.Client
	logger     log.FieldLogger
}

var _ Uploader = (*HTTPUploader)(nil)

func NewHTTPUploader(baseURL, bucket, key string, timeout time.Duration, logger log.FieldLogger) *HTTPUploader {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &HTTPUploader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bucket:     bucket,
		key:        key,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithField("component", "storage"),
	}
}

// ObjectName builds a collision-free object name that keeps the extension
// of the original file.
func ObjectName(original string) string {
	name := uuid.NewString()
	if ext := path.Ext(original); ext != "" {
		name += strings.ToLower(ext)
	}
	return name
}

func (u *HTTPUploader) objectURL(objectPath string) string {
	return fmt.Sprintf("%s/object/%s/%s", u.baseURL, u.bucket, escapePath(objectPath))
}

// PublicURL returns the public address of a stored object.
func (u *HTTPUploader) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", u.baseURL, u.bucket, escapePath(objectPath))
}

func (u *HTTPUploader) Upload(ctx context.Context, file File, folder string) models.UploadResult {
	objectPath := strings.Trim(folder, "/") + "/" + ObjectName(file.Name)
	logger := u.logger.WithField("path", objectPath)

	if file.Body == nil {
		return models.UploadResult{Success: false, Error: "empty file"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.objectURL(objectPath), file.Body)
	if err != nil {
		logger.WithError(err).Error("Upload error")
		return models.UploadResult{Success: false, Error: err.Error()}
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age=3600")
	req.Header.Set("x-upsert", "false")
	if u.key != "" {
		req.Header.Set("Authorization", "Bearer "+u.key)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Error("Upload service error")
		return models.UploadResult{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := errorMessage(resp.Body, "Upload failed")
		logger.WithField("status", resp.StatusCode).Error("Upload error: " + msg)
		return models.UploadResult{Success: false, Error: msg}
	}

	return models.UploadResult{Success: true, URL: u.PublicURL(objectPath), Path: objectPath}
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func errorMessage(body io.Reader, fallback string) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || json.Unmarshal(data, &payload) != nil {
		return fallback
	}
	if payload.Message != "" {
		return payload.Message
	}
	if payload.Error != "" {
		return payload.Error
	}
	return fallback
}

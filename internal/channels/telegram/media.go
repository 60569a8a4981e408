package telegram

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mymmrac/telego"
)

const defaultMaxUploadBytes int64 = 20 * 1024 * 1024 // Telegram Bot API's own download cap

// downloadMaxRetries bounds the GetFile retry loop before giving up on a
// flaky upload.
const downloadMaxRetries = 3

// resolveUploads downloads every file attached to msg into the uploads
// directory under a unique name, returning their local paths.
func (c *Channel) resolveUploads(ctx context.Context, msg *telego.Message) []string {
	var fileIDs []struct {
		id   string
		name string
	}

	if msg.Document != nil {
		fileIDs = append(fileIDs, struct{ id, name string }{msg.Document.FileID, msg.Document.FileName})
	}
	if len(msg.Photo) > 0 {
		p := msg.Photo[len(msg.Photo)-1]
		fileIDs = append(fileIDs, struct{ id, name string }{p.FileID, "photo.jpg"})
	}

	var paths []string
	for _, f := range fileIDs {
		path, err := c.downloadUpload(ctx, f.id, f.name)
		if err != nil {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

// downloadUpload fetches one Telegram file and saves it under a unique
// name (<stem>_<random><ext>) in the uploads directory.
func (c *Channel) downloadUpload(ctx context.Context, fileID, origName string) (string, error) {
	maxBytes := c.maxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}

	var file *telego.File
	var err error
	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		file, err = c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			break
		}
		if attempt < downloadMaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("telegram: get file info: %w", err)
	}
	if int64(file.FileSize) > maxBytes {
		return "", fmt.Errorf("telegram: file too large: %d bytes (max %d)", file.FileSize, maxBytes)
	}

	downloadURL := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.cfg.Token, file.FilePath)
	resp, err := http.Get(downloadURL)
	if err != nil {
		return "", fmt.Errorf("telegram: download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram: download failed with status %d", resp.StatusCode)
	}

	if origName == "" {
		origName = filepath.Base(file.FilePath)
	}
	destPath := filepath.Join(c.uploadsDir, uniqueUploadName(origName))

	out, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("telegram: create upload file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("telegram: save upload: %w", err)
	}
	if written > maxBytes {
		os.Remove(destPath)
		return "", fmt.Errorf("telegram: upload exceeds max size during download: %d bytes", written)
	}
	return destPath, nil
}

// uniqueUploadName produces "<stem>_<random><ext>" so two uploads with
// the same original filename never collide in the shared uploads dir.
func uniqueUploadName(origName string) string {
	ext := filepath.Ext(origName)
	stem := strings.TrimSuffix(filepath.Base(origName), ext)
	if stem == "" {
		stem = "upload"
	}
	return fmt.Sprintf("%s_%s%s", stem, randomSuffix(), ext)
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "0"
	}
	return hex.EncodeToString(b)
}

package service

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/sirupsen/logrus"
)

// allowedMedia - допустимые расширения и соответствующий им реальный тип содержимого
var allowedMedia = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".mp4":  "video/mp4",
	".webm": "video/webm",
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// validateMedia проверяет все вложения до того, как хоть одно будет сохранено
func validateMedia(uploads []models.MediaUpload, maxFiles int, maxBytes int64) error {
	if len(uploads) > maxFiles {
		return validationError("at most %d media files are allowed", maxFiles)
	}
	for _, u := range uploads {
		if u.Size > maxBytes {
			return validationError("file %q exceeds %d bytes", u.Filename, maxBytes)
		}
		expected, ok := allowedMedia[strings.ToLower(filepath.Ext(u.Filename))]
		if !ok {
			return validationError("only JPEG/PNG images and MP4/WebM videos are allowed")
		}
		if err := sniffMedia(u, expected); err != nil {
			return err
		}
	}
	return nil
}

func sniffMedia(u models.MediaUpload, expected string) error {
	rc, err := u.Open()
	if err != nil {
		return fmt.Errorf("failed to open media %q: %w", u.Filename, err)
	}
	defer rc.Close()

	mt, err := mimetype.DetectReader(rc)
	if err != nil {
		return fmt.Errorf("failed to detect media type of %q: %w", u.Filename, err)
	}
	if !mt.Is(expected) {
		return validationError("file %q content is %s, expected %s", u.Filename, mt.String(), expected)
	}
	return nil
}

// storeMedia сохраняет вложения по очереди. При любой ошибке уже сохраненные файлы удаляются,
// чтобы не оставлять файлов без ссылающегося на них происшествия.
func (s *incidentService) storeMedia(ctx context.Context, uploads []models.MediaUpload, now time.Time) ([]string, error) {
	paths := make([]string, 0, len(uploads))
	for _, u := range uploads {
		path, err := s.saveOne(ctx, u, now)
		if err != nil {
			s.discardMedia(ctx, paths)
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (s *incidentService) saveOne(ctx context.Context, u models.MediaUpload, now time.Time) (string, error) {
	rc, err := u.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open media %q: %w", u.Filename, err)
	}
	defer rc.Close()

	name := fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], sanitizeFilename(u.Filename))
	contentType := allowedMedia[strings.ToLower(filepath.Ext(u.Filename))]
	path, err := s.media.Save(ctx, name, rc, u.Size, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store media %q: %w", u.Filename, err)
	}
	return path, nil
}

func (s *incidentService) discardMedia(ctx context.Context, paths []string) {
	for _, p := range paths {
		if err := s.media.Delete(context.WithoutCancel(ctx), p); err != nil {
			s.logger.WithFields(logrus.Fields{"service": "incident", "path": p}).
				WithError(err).Warn("Failed to remove orphaned media file")
		}
	}
}

func sanitizeFilename(name string) string {
	base := unsafeFilenameChars.ReplaceAllString(filepath.Base(name), "_")
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return base
}

package handler

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"shareapi/internal/service"
)

type uploadResponse struct {
	Success          bool       `json:"success"`
	ID               string     `json:"id"`
	OriginalFilename string     `json:"originalFilename"`
	FileSize         int64      `json:"fileSize"`
	MaxDownloads     int        `json:"maxDownloads"`
	ExpiresAt        *time.Time `json:"expiresAt"`
}

type fileInfoResponse struct {
	Success            bool       `json:"success"`
	OriginalFilename   string     `json:"originalFilename"`
	FileSize           int64      `json:"fileSize"`
	MimeType           string     `json:"mimeType"`
	RemainingDownloads int        `json:"remainingDownloads"`
	ExpiresAt          *time.Time `json:"expiresAt"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// formInt reads an optional integer form field. An absent or empty field
// yields nil so the service applies its default.
func formInt(c *fiber.Ctx, key string) (*int, error) {
	v := c.FormValue(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// UploadFile accepts multipart/form-data with the payload in the "file" field.
//
// @Summary Upload a file
// @Tags files
// @Accept mpfd
// @Produce json
// @Param file formData file true "payload"
// @Param maxDownloads formData int false "1-100, default 1"
// @Param expiryHours formData int false "1-168, default 24"
// @Success 201 {object} uploadResponse
// @Failure 400 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Failure 507 {object} errorPayload
// @Router /upload [post]
func UploadFile(svc service.ShareService, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		maxDownloads, err := formInt(c, "maxDownloads")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "maxDownloads: must be an integer")
		}
		expiryHours, err := formInt(c, "expiryHours")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "expiryHours: must be an integer")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		a, err := svc.Upload(c.UserContext(), service.UploadInput{
			Body:         f,
			Filename:     fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			MaxDownloads: maxDownloads,
			ExpiryHours:  expiryHours,
		})
		if err != nil {
			return writeServiceError(c, log, err)
		}

		return c.Status(fiber.StatusCreated).JSON(uploadResponse{
			Success:          true,
			ID:               a.ID,
			OriginalFilename: a.OriginalName,
			FileSize:         a.SizeBytes,
			MaxDownloads:     a.MaxDownloads,
			ExpiresAt:        a.ExpiresAt,
		})
	}
}

// GetFileInfo returns descriptive metadata without consuming a download.
//
// @Summary File metadata
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} fileInfoResponse
// @Failure 404 {object} errorPayload
// @Failure 410 {object} errorPayload
// @Router /file/{id}/info [get]
func GetFileInfo(svc service.ShareService, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		a, err := svc.Info(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(fileInfoResponse{
			Success:            true,
			OriginalFilename:   a.OriginalName,
			FileSize:           a.SizeBytes,
			MimeType:           a.ContentType,
			RemainingDownloads: a.RemainingDownloads(),
			ExpiresAt:          a.ExpiresAt,
			CreatedAt:          a.CreatedAt,
		})
	}
}

// DownloadFile streams the payload and charges one download.
// The body is closed by the server once the response has been written,
// which is when a last-download reap runs.
//
// @Summary Download a file
// @Tags files
// @Produce octet-stream
// @Param id path string true "file id"
// @Success 200 {file} binary
// @Failure 404 {object} errorPayload
// @Failure 410 {object} errorPayload
// @Router /download/{id} [get]
func DownloadFile(svc service.ShareService, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := svc.Download(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeServiceError(c, log, err)
		}

		name := url.PathEscape(d.Artifact.OriginalName)
		c.Set(fiber.HeaderContentType, d.Artifact.ContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, name, name))
		c.Set(fiber.HeaderCacheControl, "no-store")
		c.Set("X-Remaining-Downloads", strconv.Itoa(d.Remaining()))
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderXDownloadOptions, "noopen")

		return c.SendStream(d.Body, int(d.Size))
	}
}

// DeleteFile removes the file immediately. Deleting twice succeeds.
//
// @Summary Delete a file
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} messageResponse
// @Failure 404 {object} errorPayload
// @Router /file/{id} [delete]
func DeleteFile(svc service.ShareService, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := svc.Delete(c.UserContext(), c.Params("id")); err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(messageResponse{Success: true, Message: "file deleted"})
	}
}

// GetStats returns registry aggregates.
//
// @Summary Storage statistics
// @Tags stats
// @Produce json
// @Success 200 {object} model.Stats
// @Router /stats [get]
func GetStats(svc service.ShareService, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := svc.Stats(c.UserContext())
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(st)
	}
}

// ListFiles lists retrievable files newest first with limit & offset.
//
// @Summary List active files
// @Tags files
// @Produce json
// @Param limit query int false "1-100, default 10"
// @Param offset query int false "default 0"
// @Success 200 {object} service.ArtifactListResult
// @Failure 400 {object} errorPayload
// @Router /files [get]
func ListFiles(svc service.ShareService, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(res)
	}
}

package server

import (
	"io"

	"familynova/internal/models"
	"familynova/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadImage handles POST /api/images with a multipart "image" file.
// The stored URL can be attached to a post or proposed as an avatar.
func (s *Server) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return mapServiceError(c, models.NewValidationError("No file uploaded"))
	}

	src, err := file.Open()
	if err != nil {
		return mapServiceError(c, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return mapServiceError(c, models.NewValidationError("Unable to read uploaded file"))
	}

	// Browsers fall back to octet-stream when they cannot guess; let the
	// content sniffing decide in that case.
	contentType := file.Header.Get("Content-Type")
	if contentType == fiber.MIMEOctetStream {
		contentType = ""
	}

	uploaded, err := s.imageSvc.Upload(c.UserContext(), service.UploadImageInput{
		AccountID:   currentAccountID(c),
		Filename:    file.Filename,
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(uploaded)
}

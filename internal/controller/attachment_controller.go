package controller

import (
	"servicelines-be/internal/dto"
	"servicelines-be/internal/pkg/serverutils"
	"servicelines-be/internal/service"
	"servicelines-be/pkg/apperr"
	"servicelines-be/pkg/attachment"

	"github.com/gofiber/fiber/v2"
)

type IAttachmentController interface {
	RegisterRoutes(r fiber.Router)
	Extract(ctx *fiber.Ctx) error
}

type attachmentController struct {
	extractor attachment.Extractor
	sessions  service.ISessionService
}

func NewAttachmentController(extractor attachment.Extractor, sessions service.ISessionService) IAttachmentController {
	return &attachmentController{extractor: extractor, sessions: sessions}
}

func (c *attachmentController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/workflow/v1/attachments")
	h.Use(serverutils.SessionMiddleware(c.sessions))
	h.Post("", c.Extract)
}

// Extract returns the text of an uploaded file; the client sends it back as
// attachment_text on submit.
func (c *attachmentController) Extract(ctx *fiber.Ctx) error {
	header, err := ctx.FormFile("file")
	if err != nil {
		return apperr.Validation("multipart field \"file\" is required")
	}
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	text, err := c.extractor.Extract(ctx.UserContext(), header.Filename, file)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success extract attachment", &dto.AttachmentResponse{
		Filename: header.Filename,
		Text:     text,
	}))
}

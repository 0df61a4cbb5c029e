package controller

import (
	"fmt"

	"servicelines-be/internal/dto"
	"servicelines-be/internal/pkg/serverutils"
	"servicelines-be/internal/service"
	"servicelines-be/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

type IWorkflowController interface {
	RegisterRoutes(r fiber.Router)
	IssueSession(ctx *fiber.Ctx) error
	State(ctx *fiber.Ctx) error
	Submit(ctx *fiber.Ctx) error
	Regenerate(ctx *fiber.Ctx) error
	SetSelected(ctx *fiber.Ctx) error
	SetChoice(ctx *fiber.Ctx) error
	SetCarousel(ctx *fiber.Ctx) error
	Review(ctx *fiber.Ctx) error
	Versions(ctx *fiber.Ctx) error
	SwitchVersion(ctx *fiber.Ctx) error
}

type workflowController struct {
	service  service.IWorkflowService
	sessions service.ISessionService
}

func NewWorkflowController(service service.IWorkflowService, sessions service.ISessionService) IWorkflowController {
	return &workflowController{service: service, sessions: sessions}
}

func (c *workflowController) RegisterRoutes(r fiber.Router) {
	// Public: registered ahead of the group so the session middleware never sees it.
	r.Post("/workflow/v1/session", c.IssueSession)

	h := r.Group("/workflow/v1")
	h.Use(serverutils.SessionMiddleware(c.sessions))
	h.Get("/state", c.State)
	h.Post("/submit", c.Submit)
	h.Post("/regenerate", c.Regenerate)
	h.Put("/selection/:index", c.SetSelected)
	h.Put("/selection/:index/choice", c.SetChoice)
	h.Put("/carousel/:index", c.SetCarousel)
	h.Get("/review", c.Review)
	h.Get("/versions", c.Versions)
	h.Put("/versions/:index", c.SwitchVersion)
}

func indexParam(ctx *fiber.Ctx) (int, error) {
	index, err := ctx.ParamsInt("index")
	if err != nil {
		return 0, apperr.Validation(fmt.Sprintf("invalid index %q", ctx.Params("index")))
	}
	return index, nil
}

func (c *workflowController) IssueSession(ctx *fiber.Ctx) error {
	res, err := c.sessions.Issue()
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session created", res))
}

func (c *workflowController) State(ctx *fiber.Ctx) error {
	res, err := c.service.State(ctx.UserContext(), serverutils.SessionID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get workflow state", res))
}

func (c *workflowController) Submit(ctx *fiber.Ctx) error {
	var req dto.SubmitRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Submit(ctx.UserContext(), serverutils.SessionID(ctx), &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Pipeline run started", res))
}

func (c *workflowController) Regenerate(ctx *fiber.Ctx) error {
	var req dto.RegenerateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.Regenerate(ctx.UserContext(), serverutils.SessionID(ctx), &req); err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse[any]("Regeneration started", nil))
}

func (c *workflowController) SetSelected(ctx *fiber.Ctx) error {
	index, err := indexParam(ctx)
	if err != nil {
		return err
	}
	var req dto.SelectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}

	if err := c.service.SetSelected(ctx.UserContext(), serverutils.SessionID(ctx), index, &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success update selection", nil))
}

func (c *workflowController) SetChoice(ctx *fiber.Ctx) error {
	index, err := indexParam(ctx)
	if err != nil {
		return err
	}
	var req dto.ChoiceRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.SetChoice(ctx.UserContext(), serverutils.SessionID(ctx), index, &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success update choice", nil))
}

func (c *workflowController) SetCarousel(ctx *fiber.Ctx) error {
	index, err := indexParam(ctx)
	if err != nil {
		return err
	}
	var req dto.CarouselRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if err := c.service.SetCarousel(ctx.UserContext(), serverutils.SessionID(ctx), index, &req); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success move carousel", nil))
}

func (c *workflowController) Review(ctx *fiber.Ctx) error {
	res, err := c.service.Review(ctx.UserContext(), serverutils.SessionID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get review", res))
}

func (c *workflowController) Versions(ctx *fiber.Ctx) error {
	res, err := c.service.Versions(ctx.UserContext(), serverutils.SessionID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get versions", res))
}

func (c *workflowController) SwitchVersion(ctx *fiber.Ctx) error {
	index, err := indexParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.SwitchVersion(ctx.UserContext(), serverutils.SessionID(ctx), index)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success switch version", res))
}

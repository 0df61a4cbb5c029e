package controller

import (
	"servicelines-be/internal/pkg/serverutils"
	"servicelines-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IThreadController interface {
	RegisterRoutes(r fiber.Router)
	GetAll(ctx *fiber.Ctx) error
	Create(ctx *fiber.Ctx) error
	Select(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
}

type threadController struct {
	service  service.IWorkflowService
	sessions service.ISessionService
}

func NewThreadController(service service.IWorkflowService, sessions service.ISessionService) IThreadController {
	return &threadController{service: service, sessions: sessions}
}

func (c *threadController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/workflow/v1/threads")
	h.Use(serverutils.SessionMiddleware(c.sessions))
	h.Get("", c.GetAll)
	h.Post("", c.Create)
	h.Put(":id/select", c.Select)
	h.Delete(":id", c.Delete)
}

func (c *threadController) GetAll(ctx *fiber.Ctx) error {
	res, err := c.service.Threads(ctx.UserContext(), serverutils.SessionID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get all threads", res))
}

func (c *threadController) Create(ctx *fiber.Ctx) error {
	res, err := c.service.CreateThread(ctx.UserContext(), serverutils.SessionID(ctx))
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create thread", res))
}

func (c *threadController) Select(ctx *fiber.Ctx) error {
	res, err := c.service.SelectThread(ctx.UserContext(), serverutils.SessionID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success select thread", res))
}

func (c *threadController) Delete(ctx *fiber.Ctx) error {
	res, err := c.service.DeleteThread(ctx.UserContext(), serverutils.SessionID(ctx), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success delete thread", res))
}

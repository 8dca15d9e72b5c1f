package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

const requestIDKey = "requestid"

// NewApp собирает fiber-приложение с маршрутами и middleware.
// bodyLimit ограничивает всё тело запроса, оба файла вместе.
func NewApp(h *Handler, bodyLimit int) *fiber.App {
	a := fiber.New(fiber.Config{
		AppName:               "image-similarity",
		BodyLimit:             bodyLimit,
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: true,
	})

	a.Use(recover.New())
	a.Use(requestid.New(requestid.Config{
		Generator:  uuid.NewString,
		ContextKey: requestIDKey,
	}))
	a.Use(logger.New(logger.Config{
		Format: "[${locals:requestid}] ${status} - ${latency} ${method} ${path}\n",
	}))
	a.Use(cors.New())

	a.Get("/health", h.Health)
	a.Post("/compare", h.Compare)

	return a
}

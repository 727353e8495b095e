package httpapi

import (
	"bytes"
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/hightemps/internal/render"
	"github.com/i474232898/hightemps/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. Runs started
// over HTTP live under runCtx rather than the request context.
func RegisterRoutes(app *fiber.App, service *weather.Service, runCtx context.Context) {
	v1 := app.Group("/api/v1")

	v1.Get("/sources", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"sources": service.Sources()})
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		q, err := parseRunQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		run, err := service.Start(runCtx, weather.Source(q.Source))
		switch {
		case err == nil:
			return c.Status(fiber.StatusAccepted).JSON(run)
		case errors.Is(err, weather.ErrRunInProgress):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, weather.ErrUnknownSource):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, weather.ErrMissingCredential):
			return fiber.NewError(fiber.StatusBadRequest, weather.UserMessage(err))
		default:
			return fiber.NewError(fiber.StatusInternalServerError, weather.UserMessage(err))
		}
	})

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		run, err := service.Latest()
		if err != nil {
			return runLookupError(err)
		}
		return c.JSON(run)
	})

	v1.Get("/runs/:id", func(c *fiber.Ctx) error {
		run, err := service.GetRun(c.Params("id"))
		if err != nil {
			return runLookupError(err)
		}
		return c.JSON(run)
	})

	v1.Get("/runs/:id/calendar", func(c *fiber.Ctx) error {
		run, err := service.GetRun(c.Params("id"))
		if err != nil {
			return runLookupError(err)
		}
		return c.JSON(fiber.Map{
			"id":     run.ID,
			"status": run.Status,
			"months": weather.GroupByMonth(run.Records),
		})
	})

	v1.Get("/runs/:id/calendar.txt", func(c *fiber.Ctx) error {
		run, err := service.GetRun(c.Params("id"))
		if err != nil {
			return runLookupError(err)
		}
		var buf bytes.Buffer
		if err := render.Calendar(&buf, run); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to render calendar")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.Send(buf.Bytes())
	})
}

func runLookupError(err error) error {
	if errors.Is(err, weather.ErrRunNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no fetch run found")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to load fetch run")
}

// runQuery holds query parameters for starting a run.
type runQuery struct {
	Source string `validate:"required,oneof=archive forecast history"`
}

func parseRunQuery(c *fiber.Ctx) (runQuery, error) {
	var q runQuery

	q.Source = c.Query("source")

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/smhi-forecast/internal/render"
	"github.com/i474232898/smhi-forecast/internal/store"
	"github.com/i474232898/smhi-forecast/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, widget *render.Cache) {
	app.Get("/", func(c *fiber.Ctx) error {
		html := widget.HTML()
		if html == nil {
			widget.Update(service.State())
			html = widget.HTML()
		}
		c.Type("html", "utf-8")
		return c.Send(html)
	})

	v1 := app.Group("/api/v1")

	v1.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(service.State())
	})

	v1.Get("/forecast", func(c *fiber.Ctx) error {
		forecast, err := currentForecast(service)
		if err != nil {
			return err
		}

		etag := `"` + forecast.ID.String() + `"`
		c.Set(fiber.HeaderETag, etag)
		if c.Get(fiber.HeaderIfNoneMatch) == etag {
			return c.SendStatus(fiber.StatusNotModified)
		}
		return c.JSON(forecast)
	})

	v1.Get("/forecast/current", func(c *fiber.Ctx) error {
		forecast, err := currentForecast(service)
		if err != nil {
			return err
		}
		if forecast.Current == nil {
			return fiber.NewError(fiber.StatusNotFound, "no current observation in forecast")
		}
		return c.JSON(fiber.Map{
			"observation": forecast.Current,
			"icon":        forecast.CurrentIcon,
		})
	})

	v1.Get("/forecast/hourly", func(c *fiber.Ctx) error {
		forecast, err := currentForecast(service)
		if err != nil {
			return err
		}
		return c.JSON(forecast.Hourly)
	})

	v1.Get("/forecast/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshots, err := service.GetRange(req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no forecast history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch forecast history")
		}

		return c.JSON(fiber.Map{
			"location":  service.Location(),
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})

	v1.Post("/forecast/refresh", func(c *fiber.Ctx) error {
		if err := service.Refresh(); err != nil {
			switch {
			case errors.Is(err, weather.ErrHalted):
				return fiber.NewError(fiber.StatusConflict, err.Error())
			case errors.Is(err, weather.ErrUnconfigured):
				return fiber.NewError(fiber.StatusPreconditionFailed, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to schedule refresh")
		}
		return c.Status(fiber.StatusAccepted).JSON(service.State())
	})

	v1.Put("/location", func(c *fiber.Ctx) error {
		var req locationRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := weather.Location{Lon: req.Lon, Lat: req.Lat}
		if err := service.Reconfigure(loc, req.APIKey); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.Status(fiber.StatusAccepted).JSON(service.State())
	})
}

func currentForecast(service *weather.Service) (*weather.Forecast, error) {
	st := service.State()
	if st.Forecast == nil {
		if st.Status == weather.StatusUnconfigured {
			return nil, fiber.NewError(fiber.StatusPreconditionFailed, weather.ErrUnconfigured.Error())
		}
		return nil, fiber.NewError(fiber.StatusNotFound, "no forecast loaded yet")
	}
	return st.Forecast, nil
}

// locationRequest is the body of PUT /api/v1/location.
type locationRequest struct {
	Lon    float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Lat    float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	APIKey string  `json:"apiKey"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}

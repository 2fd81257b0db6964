package server

import (
	"net/http"
	"time"

	"sunspecbridge/internal/core/domain"
	"sunspecbridge/pkg/sunspec"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/api/device", s.DeviceHandler)
	e.GET("/api/measurements", s.MeasurementsHandler)
	e.GET("/api/powerlimit", s.PowerLimitHandler)
	e.GET("/api/sunspec", s.SunSpecModelHandler)
	e.GET("/api/config", s.ConfigHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) DeviceHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.Info())
}

type measurementsResponse struct {
	Measurements *sunspec.Measurements `json:"measurements"`
	AgeMillis    int64                 `json:"age_millis"`
	Stale        bool                  `json:"stale"`
}

func (s *Server) MeasurementsHandler(c echo.Context) error {
	m, ok := s.store.Measurements()
	if !ok {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "no measurements acquired yet",
		})
	}
	age := time.Since(m.AcquiredAt)
	return c.JSON(http.StatusOK, measurementsResponse{
		Measurements: m,
		AgeMillis:    age.Milliseconds(),
		Stale:        s.staleAfter > 0 && age > s.staleAfter,
	})
}

func (s *Server) PowerLimitHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.PowerLimit())
}

// SunSpecModelHandler decodes the served register image back through the
// model chain, which is handy to verify exactly what a Modbus client sees.
func (s *Server) SunSpecModelHandler(c echo.Context) error {
	decoded, err := sunspec.DecodeImage(s.store.Current().Image)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, decoded)
}

func (s *Server) ConfigHandler(c echo.Context) error {
	cfg := s.config
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	return c.JSON(http.StatusOK, cfg)
}

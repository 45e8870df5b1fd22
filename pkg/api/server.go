package api

import (
	"context"
	"errors"
	"strconv"

	"com.aviebrantz.smart-energy/pkg/auth"
	"com.aviebrantz.smart-energy/pkg/config"
	"com.aviebrantz.smart-energy/pkg/core/store/historical"
	"com.aviebrantz.smart-energy/pkg/dashboard"
	"com.aviebrantz.smart-energy/pkg/homegraph"
	"com.aviebrantz.smart-energy/pkg/location"
	"com.aviebrantz.smart-energy/pkg/notice"
	"com.aviebrantz.smart-energy/pkg/presence"
	"github.com/apex/log"
	"github.com/gofiber/fiber"
)

// SampleSink accepts location samples pushed by the phone.
type SampleSink interface {
	Publish(ctx context.Context, s location.Sample) error
}

// Services are the components the HTTP API exposes.
type Services struct {
	Controller    *dashboard.Controller
	Usage         *dashboard.UsageChart
	History       historical.TimeSeriesStore
	Authenticator *auth.Authenticator
	Session       *auth.Session
	Gate          *presence.Gate
	Monitor       *presence.Monitor
	Tracker       *location.Tracker
	Samples       SampleSink
	Notices       *notice.Board
}

type ApiServer struct {
	Services
	config    config.APIServerConfig
	usageDays int
	logger    *log.Entry
}

func NewServer(services Services, config config.APIServerConfig, usage config.UsageConfig) *ApiServer {
	return &ApiServer{
		Services:  services,
		config:    config,
		usageDays: usage.Days,
		logger:    log.WithField("module", "api"),
	}
}

func (as *ApiServer) routes() *fiber.App {
	app := fiber.New()

	app.Get("/devices", as.getDevices)
	app.Post("/devices/:deviceID/toggle", as.toggleDevice)
	app.Post("/devices/:deviceID/report", as.reportDevice)
	app.Get("/devices/:deviceID/history", as.getDeviceHistory)

	app.Get("/auth/login", as.login)
	app.Get("/auth/callback", as.loginCallback)
	app.Get("/auth/session", as.getSession)

	app.Get("/presence", as.getPresence)
	app.Post("/presence/location", as.postLocation)
	app.Post("/presence/permission", as.postPermission)
	app.Post("/presence/check", as.checkPresence)

	app.Get("/usage", as.getUsage)
	app.Get("/notices", as.getNotices)

	return app
}

func (as *ApiServer) Start() {
	app := as.routes()
	as.logger.Infof("Starting API server on port %d", as.config.Port)
	if err := app.Listen(":" + strconv.Itoa(as.config.Port)); err != nil {
		as.logger.Fatalf("Error starting API server: %v", err)
	}
}

// sendError maps domain errors onto HTTP status codes.
func sendError(ctx *fiber.Ctx, err error) {
	var terr *homegraph.TransportError
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		ctx.Status(fiber.StatusUnauthorized)
	case errors.Is(err, location.ErrPermissionDenied):
		ctx.Status(fiber.StatusForbidden)
	case errors.Is(err, dashboard.ErrDeviceNotFound):
		ctx.Status(fiber.StatusNotFound)
	case errors.Is(err, location.ErrNoFix):
		ctx.Status(fiber.StatusConflict)
	case errors.As(err, &terr):
		ctx.Status(fiber.StatusBadGateway)
		ctx.JSON(fiber.Map{"message": err.Error(), "payload": terr.Payload})
		return
	default:
		ctx.Status(fiber.StatusInternalServerError)
	}
	ctx.JSON(fiber.Map{"message": err.Error()})
}

func badRequest(ctx *fiber.Ctx, message string) {
	ctx.Status(fiber.StatusBadRequest)
	ctx.JSON(fiber.Map{"message": message})
}

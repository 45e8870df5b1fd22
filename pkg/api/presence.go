package api

import (
	"encoding/json"

	"com.aviebrantz.smart-energy/pkg/location"
	"github.com/gofiber/fiber"
)

type permissionRequest struct {
	Granted *bool `json:"granted"`
}

func (as *ApiServer) getPresence(ctx *fiber.Ctx) {
	body := fiber.Map{
		"home":       as.Gate.Home(),
		"threshold":  as.Gate.Threshold(),
		"permission": as.Tracker.Permission(),
		"reading":    nil,
	}
	if reading, ok := as.Gate.Latest(); ok {
		body["reading"] = reading
	}
	ctx.JSON(body)
}

func (as *ApiServer) postLocation(ctx *fiber.Ctx) {
	format := location.FormatFromContentType(ctx.Get("Content-Type"))
	sample, err := location.Decode(format, []byte(ctx.Body()))
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}

	if err := as.Samples.Publish(ctx.Context(), sample); err != nil {
		sendError(ctx, err)
		return
	}

	ctx.Status(fiber.StatusAccepted)
	ctx.JSON(fiber.Map{"message": "accepted"})
}

func (as *ApiServer) postPermission(ctx *fiber.Ctx) {
	req := &permissionRequest{}
	if err := json.Unmarshal([]byte(ctx.Body()), req); err != nil || req.Granted == nil {
		badRequest(ctx, "Missing granted flag")
		return
	}

	as.Tracker.SetPermission(*req.Granted)
	ctx.JSON(fiber.Map{"permission": as.Tracker.Permission()})
}

func (as *ApiServer) checkPresence(ctx *fiber.Ctx) {
	reading, err := as.Monitor.Check(ctx.Context())
	if err != nil {
		sendError(ctx, err)
		return
	}
	ctx.JSON(reading)
}

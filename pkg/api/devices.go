package api

import (
	"encoding/json"

	"com.aviebrantz.smart-energy/pkg/core/store/devices"
	"github.com/gofiber/fiber"
)

type reportRequest struct {
	CurrentEnergyUse *float64 `json:"currentEnergyUse"`
}

func (as *ApiServer) getDevices(ctx *fiber.Ctx) {
	list, err := as.Controller.Devices(ctx.Context())
	if err != nil {
		sendError(ctx, err)
		return
	}

	if list == nil {
		list = make([]*devices.Device, 0)
	}

	ctx.JSON(list)
}

func (as *ApiServer) toggleDevice(ctx *fiber.Ctx) {
	deviceID := ctx.Params("deviceID")

	device, resp, err := as.Controller.Toggle(ctx.Context(), deviceID)
	if err != nil {
		sendError(ctx, err)
		return
	}

	ctx.JSON(fiber.Map{"device": device, "response": resp})
}

func (as *ApiServer) reportDevice(ctx *fiber.Ctx) {
	deviceID := ctx.Params("deviceID")

	req := &reportRequest{}
	if body := []byte(ctx.Body()); len(body) > 0 {
		if err := json.Unmarshal(body, req); err != nil {
			badRequest(ctx, "Invalid report body")
			return
		}
	}

	resp, err := as.Controller.Report(ctx.Context(), deviceID, req.CurrentEnergyUse)
	if err != nil {
		sendError(ctx, err)
		return
	}

	ctx.JSON(resp)
}

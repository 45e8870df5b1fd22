package api

import (
	"time"

	"com.aviebrantz.smart-energy/pkg/core/store/historical"
	"github.com/gofiber/fiber"
)

func (as *ApiServer) getDeviceHistory(ctx *fiber.Ctx) {

	deviceID := ctx.Params("deviceID")
	end := time.Now()
	start := end.Add(time.Hour * 24 * 7 * -1)

	points, err := as.History.GetDataPointsInRange(
		ctx.Context(),
		historical.TypeEnergy,
		deviceID,
		start,
		end,
	)

	if err != nil {
		sendError(ctx, err)
		return
	}

	if points == nil {
		points = make([]*historical.DataPoint, 0)
	}

	ctx.JSON(points)
}

package api

import (
	"strconv"
	"time"

	"com.aviebrantz.smart-energy/pkg/config"
	"github.com/gofiber/fiber"
)

func (as *ApiServer) getUsage(ctx *fiber.Ctx) {
	days := as.usageDays
	if q := ctx.Query("days"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 || n > config.MaxUsageDays {
			badRequest(ctx, "days must be a number between 0 and "+strconv.Itoa(config.MaxUsageDays))
			return
		}
		days = n
	}

	bars, err := as.Usage.Bars(ctx.Context(), days, time.Now())
	if err != nil {
		sendError(ctx, err)
		return
	}

	ctx.JSON(bars)
}

func (as *ApiServer) getNotices(ctx *fiber.Ctx) {
	ctx.JSON(as.Notices.List())
}

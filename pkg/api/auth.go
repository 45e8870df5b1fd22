package api

import (
	"com.aviebrantz.smart-energy/pkg/auth"
	"github.com/gofiber/fiber"
)

func (as *ApiServer) login(ctx *fiber.Ctx) {
	url, err := as.Authenticator.BeginLogin()
	if err != nil {
		sendError(ctx, err)
		return
	}
	ctx.Redirect(url, fiber.StatusFound)
}

func (as *ApiServer) loginCallback(ctx *fiber.Ctx) {
	res := as.Authenticator.Complete(
		ctx.Context(),
		ctx.Query("state"),
		ctx.Query("code"),
		ctx.Query("error"),
	)

	if res.Outcome != auth.OutcomeSuccess {
		message := res.Outcome.String()
		if res.Err != nil {
			message = res.Err.Error()
		}
		ctx.Status(fiber.StatusUnauthorized)
		ctx.JSON(fiber.Map{"outcome": res.Outcome.String(), "message": message})
		return
	}

	ctx.JSON(fiber.Map{"outcome": res.Outcome.String()})
}

func (as *ApiServer) getSession(ctx *fiber.Ctx) {
	state, err := as.Session.State()
	_, authenticated := as.Session.CurrentToken()

	body := fiber.Map{"state": state, "authenticated": authenticated}
	if err != nil {
		body["error"] = err.Error()
	}
	ctx.JSON(body)
}

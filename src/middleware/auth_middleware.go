package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/theleywin/Realtime-Talent-Nest/src/lib"
	"github.com/theleywin/Realtime-Talent-Nest/src/models"
)

// MemberKey is the Locals key the authenticated member is stored under.
const MemberKey = "member"

// ProtectRoute checks for a valid bearer token and attaches the member
// it identifies to the request context. Identity is established by an
// external issuer; only the signed claims are trusted here, there is no
// profile lookup.
func ProtectRoute(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(lib.MessageResponse("Unauthorized - no token provided"))
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(lib.MessageResponse("Unauthorized - invalid token format"))
		}

		claims, err := lib.VerifyJWT(token, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(lib.MessageResponse("Unauthorized - invalid token"))
		}

		memberId, ok := claims["userId"].(string)
		if !ok || memberId == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(lib.MessageResponse("Unauthorized - invalid token"))
		}
		name, _ := claims["name"].(string)

		c.Locals(MemberKey, models.Member{Id: memberId, Name: name})
		return c.Next()
	}
}

// Member returns the authenticated member attached by ProtectRoute.
func Member(c *fiber.Ctx) models.Member {
	member, _ := c.Locals(MemberKey).(models.Member)
	return member
}

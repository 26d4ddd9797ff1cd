package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/auth"
)

const (
	localsUserID = "user_id"
	localsRole   = "role"
)

// JWTAuth validates the bearer token and stores the trusted identity in
// request locals.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "authorization manquante"})
		}
		const pref = "Bearer "
		if len(header) <= len(pref) || header[:len(pref)] != pref {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "authorization invalide"})
		}
		claims, err := auth.ParseToken(secret, header[len(pref):])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "token invalide"})
		}
		c.Locals(localsUserID, claims.UserID)
		c.Locals(localsRole, claims.Role)
		return c.Next()
	}
}

func userID(c *fiber.Ctx) string {
	v, _ := c.Locals(localsUserID).(string)
	return v
}

func userRole(c *fiber.Ctx) string {
	v, _ := c.Locals(localsRole).(string)
	return v
}

// RequireAdmin guards admin-only routes. Runs after JWTAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := userRole(c)
		if role != "admin" && role != "superadmin" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"message": "acces non autorise"})
		}
		return c.Next()
	}
}

// RateLimiter caps requests per key with a redis counter and window.
type RateLimiter struct {
	rdb    *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Middleware counts requests per authenticated user (falling back to IP)
// and rejects above the limit. Redis failures let the request through.
func (r *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := userID(c)
		if key == "" {
			key = c.IP()
		}
		ctx := context.Background()
		redisKey := fmt.Sprintf("%s:ratelimit:%s", r.prefix, key)
		count, err := r.rdb.Incr(ctx, redisKey).Result()
		if err != nil {
			return c.Next()
		}
		if count == 1 {
			r.rdb.Expire(ctx, redisKey, r.window)
		}
		if count > int64(r.limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"message": "trop de requetes"})
		}
		return c.Next()
	}
}

// RequestLogger logs every request with timing.
func RequestLogger(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Infow("request",
			"method", c.Method(),
			"path", c.OriginalURL(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}

// Recovery converts panics into 500 responses.
func Recovery(log *zap.SugaredLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		defer func() {
			if r := recover(); r != nil {
				log.Errorw("panic recovered", "panic", r)
				_ = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"message": "erreur interne du serveur",
				})
			}
		}()
		return c.Next()
	}
}

package app

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	u "totemgw/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	redisStorage "github.com/gofiber/storage/redis/v2"
	"github.com/rs/xid"
)

var (
	keyLimiterCache struct {
		sync.RWMutex
		handlers map[int]fiber.Handler
	}
	rateLimitStore fiber.Storage
)

// getKeyLimiter returns a cached limiter for the given per-key limit, creating one if needed.
func getKeyLimiter(limit int) fiber.Handler {
	keyLimiterCache.RLock()
	h, ok := keyLimiterCache.handlers[limit]
	keyLimiterCache.RUnlock()
	if ok {
		return h
	}

	appCfg := u.GetConfig()
	cfg := limiter.Config{
		Max:               limit,
		Expiration:        appCfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           rateLimitStore,
		KeyGenerator: func(c *fiber.Ctx) string {
			if key, ok := c.Locals("kiosk_key").(string); ok {
				return key
			}
			return ""
		},
		LimitReached: func(c *fiber.Ctx) error {
			key, _ := c.Locals("kiosk_key").(string)
			u.Warn("Rate limit exceeded", "key", key, "path", c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too Many Requests",
			})
		},
	}

	h = limiter.New(cfg)

	keyLimiterCache.Lock()
	if keyLimiterCache.handlers == nil {
		keyLimiterCache.handlers = make(map[int]fiber.Handler)
	}
	keyLimiterCache.handlers[limit] = h
	keyLimiterCache.Unlock()

	return h
}

// keyRateLimitMiddleware applies per-kiosk-key rate limits.
func keyRateLimitMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, ok := c.Locals("kiosk_key").(string)
		if !ok || key == "" {
			return c.Next()
		}
		limit := u.GetKioskKeyRateLimit(key)
		if limit == 0 {
			return c.Next()
		}
		return getKeyLimiter(limit)(c)
	}
}

// userRateLimitMiddleware limits anonymous traffic by client fingerprint when enabled.
func userRateLimitMiddleware(cfg u.Config) fiber.Handler {
	if cfg.RateLimiter.UserLimit <= 0 {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}
	hcfg := limiter.Config{
		Max:               cfg.RateLimiter.UserLimit,
		Expiration:        cfg.RateLimiter.Interval,
		LimiterMiddleware: limiter.SlidingWindow{},
		Storage:           rateLimitStore,
		KeyGenerator: func(c *fiber.Ctx) string {
			sum := sha256.Sum256([]byte(c.IP() + c.Get("User-Agent")))
			return hex.EncodeToString(sum[:])
		},
		LimitReached: func(c *fiber.Ctx) error {
			u.Warn("Rate limit exceeded", "ip", c.IP(), "path", c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too Many Requests",
			})
		},
	}
	userLimiter := limiter.New(hcfg)
	return func(c *fiber.Ctx) error {
		// Keyed kiosks are limited per key above; skip the anonymous limiter.
		if key, ok := c.Locals("kiosk_key").(string); ok && key != "" {
			return c.Next()
		}
		return userLimiter(c)
	}
}

// corsAllowed checks the request Origin against the configured allow-list.
// This is the canonical behavior; Origin is never echoed unconditionally.
func corsAllowed(cfg u.Config) func(origin string) bool {
	return func(origin string) bool {
		for _, allowed := range cfg.Security.CORSOrigins {
			if strings.EqualFold(origin, allowed) {
				return true
			}
		}
		return false
	}
}

// RegisterMiddleware attaches global middleware to the app
func RegisterMiddleware(app *fiber.App, cfg u.Config) {
	rateLimitStore = memoryStorage.New() // safe default

	if cfg.Cache.RedisHost != "" {
		func() {
			defer func() {
				if r := recover(); r != nil {
					u.Error("Redis limiter store init panicked, falling back to memory", "panic", r)
				}
			}()
			rateLimitStore = redisStorage.New(redisStorage.Config{
				Addrs:    []string{cfg.Cache.RedisHost},
				Database: cfg.Cache.RateLimitDB,
			})
			u.Info("Using Redis for rate limiting", "addr", cfg.Cache.RedisHost, "db", cfg.Cache.RateLimitDB)
		}()
	}

	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: corsAllowed(cfg),
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowHeaders:     "Content-Type, Authorization, Accept, X-API-Key",
		ExposeHeaders:    "Content-Type, Content-Disposition",
	}))

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: "kiosk_key",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			// Provide a clear signal when the key store is not loaded yet.
			if !u.KioskKeysReady() {
				return false, u.ErrKeyStoreNotReady
			}
			if !u.ValidateKioskKey(key) {
				return false, u.ErrInvalidKioskKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			// Keys are optional on kiosk LANs; only validate when one is sent.
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Keyauth can call ErrorHandler with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if err == u.ErrKeyStoreNotReady {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		},
	}))

	app.Use(keyRateLimitMiddleware())

	if cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0 {
		app.Use(userRateLimitMiddleware(cfg))
	}

	app.Use(func(c *fiber.Ctx) error {
		requestID := c.Get("X-Request-ID")
		if requestID == "" {
			requestID = c.GetRespHeader("X-Request-ID")
		}
		u.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	})
}

package keyware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var defaultKeyLookup = "header:x-api-key"

// Validator resolves a raw key to the caller it identifies. It receives the
// empty string when the request carries no key.
type Validator func(ctx context.Context, key string) (any, error)

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	// KeyLookup is "<source>:<name>", source one of header, query or cookie.
	KeyLookup  string
	ContextKey string
	// Validator is required
	Validator Validator

	// ContextEnricher propagates the caller to the standard Go context.
	ContextEnricher func(ctx context.Context, caller any) context.Context
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extract := keyExtractor(cfg.KeyLookup)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		caller, err := cfg.Validator(c.UserContext(), strings.TrimSpace(extract(c)))
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, caller)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), caller))
		}

		return cfg.SuccessHandler(c)
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
			return err
		}
	}

	if cfg.Validator == nil {
		panic("AUTH: API key middleware configuration: Validator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "caller"
	}

	if cfg.KeyLookup == "" {
		cfg.KeyLookup = defaultKeyLookup
	}

	return cfg
}

func keyExtractor(lookup string) func(c *fiber.Ctx) string {
	source, name, found := strings.Cut(lookup, ":")
	if !found {
		source, name = "header", lookup
	}
	source = strings.TrimSpace(source)
	name = strings.TrimSpace(name)

	switch source {
	case "query":
		return func(c *fiber.Ctx) string { return c.Query(name) }
	case "cookie":
		return func(c *fiber.Ctx) string { return c.Cookies(name) }
	default:
		return func(c *fiber.Ctx) string { return c.Get(name) }
	}
}

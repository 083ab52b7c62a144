// Package accesslog assigns every request a correlation id and writes one
// access record per request once the response is known.
package accesslog

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/goliatone/go-auth-service/logging"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

// MessageRequest is the message of every access record.
const MessageRequest = "request"

var defaultHeaders = []string{
	fiber.HeaderHost,
	fiber.HeaderXForwardedFor,
	fiber.HeaderXForwardedProto,
	"X-Api-Key",
	fiber.HeaderUserAgent,
	fiber.HeaderAuthorization,
}

type Config struct {
	Filter func(*fiber.Ctx) bool
	// Logger receives the access records. Defaults to the "access" logger.
	Logger logging.Logger
	// Generator returns a new correlation id.
	Generator func() string
	// Headers lists the request headers copied into the record. Sensitive
	// values are redacted by the formatter.
	Headers []string
	// CallerID returns the id of the service key that made the request, if
	// one was admitted.
	CallerID func(c *fiber.Ctx) string
	// NewContext stores the correlation id and start time in the request
	// context. Defaults to the logging context helpers.
	NewContext func(ctx context.Context, requestID string, start time.Time) context.Context
	// Now is swapped in tests.
	Now func() time.Time
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		start := cfg.Now()

		requestID := strings.TrimSpace(c.Get(HeaderRequestID))
		if requestID == "" {
			requestID = cfg.Generator()
		}
		c.Set(HeaderRequestID, requestID)

		c.SetUserContext(cfg.NewContext(c.UserContext(), requestID, start))
		c.Locals("request_id", requestID)

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		cfg.write(c, requestID, start)
		return nil
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger("access")
	}

	if cfg.Generator == nil {
		cfg.Generator = NewRequestID
	}

	if cfg.Headers == nil {
		cfg.Headers = defaultHeaders
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.NewContext == nil {
		cfg.NewContext = newContext
	}

	return cfg
}

func newContext(ctx context.Context, requestID string, start time.Time) context.Context {
	ctx = logging.WithRequestID(ctx, requestID)
	return logging.WithRequestStart(ctx, start)
}

// NewRequestID returns a random 32 character hex id.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (cfg Config) write(c *fiber.Ctx, requestID string, start time.Time) {
	// the response is already final; a broken logger must not change it
	defer func() { _ = recover() }()

	latency := cfg.Now().Sub(start)

	headers := make(map[string]string, len(cfg.Headers))
	for _, name := range cfg.Headers {
		if v := c.Get(name); v != "" {
			headers[name] = v
		}
	}

	callerID := ""
	if cfg.CallerID != nil {
		callerID = cfg.CallerID(c)
	}

	cfg.Logger.WithContext(c.UserContext()).Info(MessageRequest,
		"request_id", requestID,
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"latency_ms", float64(latency.Microseconds())/1000,
		"remote_addr", c.IP(),
		"user_agent", c.Get(fiber.HeaderUserAgent),
		"headers", headers,
		"caller_key_id", callerID,
	)
}

package auth

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/goliatone/go-auth-service/metrics"
	"github.com/goliatone/go-auth-service/middleware/accesslog"
	"github.com/goliatone/go-auth-service/middleware/csrf"
	"github.com/goliatone/go-auth-service/middleware/jwtware"
	"github.com/goliatone/go-auth-service/middleware/keyware"
)

const (
	// MessageUnhandledException is logged on the "app" logger for every 500.
	MessageUnhandledException = "unhandled_exception"
	// DefaultSessionCookie holds the admin session token.
	DefaultSessionCookie = "auth_session"

	localsPanicStack = "panic_stack"
	localsAdmin      = "admin_user"
	localsAdminID    = "admin_id"
)

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	APIPrefix     string
	AdminPrefix   string
	SessionCookie string
	SecureCookies bool
	// CSRFKey signs CSRF tokens for cookie sessions. A random key is used
	// when empty. See DeriveCSRFKey.
	CSRFKey []byte
	// Metrics, when set, instruments every request and serves /metrics.
	Metrics *metrics.Metrics
	// AccessLogger receives one record per request. Defaults to "access".
	AccessLogger Logger
	// AppLogger receives unhandled errors. Defaults to "app".
	AppLogger Logger
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.APIPrefix == "" {
		c.APIPrefix = "/api"
	}
	if c.AdminPrefix == "" {
		c.AdminPrefix = "/admin"
	}
	if c.SessionCookie == "" {
		c.SessionCookie = DefaultSessionCookie
	}
	if c.AppLogger == nil {
		c.AppLogger = defaultLoggerProvider().GetLogger("app")
	}
	if c.AccessLogger == nil {
		c.AccessLogger = defaultLoggerProvider().GetLogger("access")
	}
	return c
}

// NewHTTPApp assembles the Fiber application serving the API and, when admin
// is not nil, the admin console.
func NewHTTPApp(cfg HTTPConfig, service *Service, gate *Gate, admin *AdminService) *fiber.App {
	cfg = cfg.withDefaults()

	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(cfg.AppLogger),
		DisableStartupMessage: true,
	})

	if cfg.Metrics != nil {
		app.Use(cfg.Metrics.Middleware())
	}

	app.Use(accesslog.New(accesslog.Config{
		Logger:     cfg.AccessLogger,
		CallerID:   callerKeyID,
		NewContext: NewRequestContext,
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			c.Locals(localsPanicStack, string(debug.Stack()))
		},
	}))

	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	RegisterAPIRoutes(app.Group(cfg.APIPrefix), NewAPIController(service), gate)

	if admin != nil {
		RegisterAdminRoutes(app.Group(cfg.AdminPrefix), NewAdminController(admin, cfg))
	}

	return app
}

// RegisterAPIRoutes mounts the service API. Everything but health requires
// a service API key.
func RegisterAPIRoutes(r fiber.Router, controller *APIController, gate *Gate) {
	r.Get("/health", controller.Health).Name("api.health")

	gated := r.Group("", APIKeyMiddleware(gate))
	gated.Post("/register", controller.Register).Name("api.register")
	gated.Post("/login", controller.Login).Name("api.login")
	gated.Post("/verify", controller.Verify).Name("api.verify")
	gated.Post("/userinfo", controller.UserInfo).Name("api.userinfo")
}

// RegisterAdminRoutes mounts the admin console. The reset endpoint is
// authorized by its token alone. Cookie sessions must echo the token from
// GET {admin}/csrf on state changing requests.
func RegisterAdminRoutes(r fiber.Router, controller *AdminController) {
	r.Post("/login", controller.Login).Name("admin.login")
	r.Post("/logout", controller.Logout).Name("admin.logout")
	r.Post("/reset/:token", controller.ResetPassword).Name("admin.reset.execute")

	protected := r.Group("", controller.SessionMiddleware(), controller.CSRFMiddleware())
	csrf.RegisterRoutes(protected, csrf.RouteConfig{RouteName: "admin.csrf"})
	protected.Get("/apikeys", controller.ListServiceKeys).Name("admin.apikeys.list")
	protected.Post("/apikeys", controller.CreateServiceKey).Name("admin.apikeys.create")
	protected.Delete("/apikeys/:id", controller.DeleteServiceKey).Name("admin.apikeys.delete")
	protected.Get("/users", controller.ListUsers).Name("admin.users.list")
	protected.Post("/users", controller.CreateUser).Name("admin.users.create")
	protected.Post("/users/:id/toggle-admin", controller.ToggleAdmin).Name("admin.users.toggle")
	protected.Delete("/users/:id", controller.DeleteUser).Name("admin.users.delete")
	protected.Post("/users/:id/reset", controller.IssueReset).Name("admin.users.reset")
}

// APIKeyMiddleware admits requests carrying a known x-api-key header and
// stores the caller in the request context.
func APIKeyMiddleware(gate *Gate) fiber.Handler {
	return keyware.New(keyware.Config{
		KeyLookup:  "header:" + HeaderAPIKey,
		ContextKey: "caller",
		Validator: func(ctx context.Context, key string) (any, error) {
			return gate.Admit(ctx, key)
		},
		ContextEnricher: func(ctx context.Context, caller any) context.Context {
			if sc, ok := caller.(*ServiceCaller); ok {
				return WithCaller(ctx, sc)
			}
			return ctx
		},
	})
}

// SessionMiddleware verifies admin session tokens read from the
// Authorization header or the session cookie.
func SessionMiddleware(admin *AdminService, cookie string) fiber.Handler {
	cfg := jwtware.Config{
		TokenValidator: admin.Sessions(),
		TokenLookup:    "header:" + fiber.HeaderAuthorization + ",cookie:" + cookie,
		ContextKey:     localsAdminID,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return ErrInvalidToken
		},
	}

	RegisterValidationListeners(&cfg, func(c *fiber.Ctx, subject string) error {
		user, err := admin.ResolveSubject(c.UserContext(), subject)
		if err != nil {
			return err
		}
		c.Locals(localsAdmin, user)
		c.SetUserContext(WithContext(c.UserContext(), user))
		return nil
	})

	return jwtware.New(cfg)
}

// CSRFMiddleware requires a CSRF token on unsafe requests authenticated by
// the session cookie. Requests carrying a Bearer token are exempt.
func CSRFMiddleware(key []byte) fiber.Handler {
	return csrf.New(csrf.Config{
		SecureKey: key,
		Filter: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		},
		SessionKey: func(c *fiber.Ctx) string {
			id, _ := c.Locals(localsAdminID).(string)
			return id
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if goerrors.Is(err, csrf.ErrTokenMissing) {
				return ErrCSRFTokenMissing
			}
			return ErrCSRFTokenInvalid
		},
	})
}

// ErrorHandler renders service errors as {"error", "code"} with their HTTP
// status. Anything else is logged with its stack and hidden behind a 500.
func ErrorHandler(logger Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && IsClientError(richErr) {
			return c.Status(richErr.Code).JSON(fiber.Map{
				"error": richErr.Message,
				"code":  richErr.TextCode,
			})
		}

		var fiberErr *fiber.Error
		if goerrors.As(err, &fiberErr) && fiberErr.Code < fiber.StatusInternalServerError {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": fiberErr.Message,
				"code":  strings.ToUpper(strings.ReplaceAll(http.StatusText(fiberErr.Code), " ", "_")),
			})
		}

		stack, _ := c.Locals(localsPanicStack).(string)
		if stack == "" {
			stack = string(debug.Stack())
		}

		args := []any{
			"error", err,
			"method", c.Method(),
			"path", c.Path(),
			"stack", stack,
		}
		if richErr != nil && len(richErr.Metadata) > 0 {
			args = append(args, "details", print.MaybePrettyJSON(richErr.Metadata))
		}
		logger.WithContext(c.UserContext()).Error(MessageUnhandledException, args...)

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal_server_error",
		})
	}
}

func callerKeyID(c *fiber.Ctx) string {
	if caller := RequestContextFrom(c.UserContext()).Caller; caller != nil {
		return caller.KeyID
	}
	return ""
}

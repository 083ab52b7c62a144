package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// AdminLoginPayload is the body of POST {admin}/login.
type AdminLoginPayload struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// ServiceKeyPayload is the body of POST {admin}/apikeys.
type ServiceKeyPayload struct {
	Description string `json:"description" form:"description"`
}

// ResetPasswordPayload is the body of POST {admin}/reset/:token.
type ResetPasswordPayload struct {
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

// AdminController serves the admin console as JSON.
type AdminController struct {
	admin         *AdminService
	sessionCookie string
	secureCookies bool
	sessionTTL    time.Duration
	csrfKey       []byte
}

func NewAdminController(admin *AdminService, cfg HTTPConfig) *AdminController {
	if admin == nil {
		panic("Missing AdminService in admin controller...")
	}

	cfg = cfg.withDefaults()

	ttl := DefaultTokenTTL
	if ts, ok := admin.Sessions().(*JWTTokenService); ok {
		ttl = ts.TTL()
	}

	return &AdminController{
		admin:         admin,
		sessionCookie: cfg.SessionCookie,
		secureCookies: cfg.SecureCookies,
		sessionTTL:    ttl,
		csrfKey:       cfg.CSRFKey,
	}
}

// SessionMiddleware guards the admin routes.
func (a *AdminController) SessionMiddleware() fiber.Handler {
	return SessionMiddleware(a.admin, a.sessionCookie)
}

// CSRFMiddleware protects cookie authenticated admin requests.
func (a *AdminController) CSRFMiddleware() fiber.Handler {
	return CSRFMiddleware(a.csrfKey)
}

func (a *AdminController) Login(c *fiber.Ctx) error {
	payload := new(AdminLoginPayload)
	if err := c.BodyParser(payload); err != nil {
		return ErrMissingFields
	}

	user, token, err := a.admin.Login(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return err
	}

	a.setSessionCookie(c, token, time.Now().Add(a.sessionTTL))

	return c.JSON(fiber.Map{
		"user":  user,
		"token": token,
	})
}

func (a *AdminController) Logout(c *fiber.Ctx) error {
	a.setSessionCookie(c, "", time.Now().Add(-24*time.Hour))
	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (a *AdminController) ListServiceKeys(c *fiber.Ctx) error {
	keys, err := a.admin.ListServiceKeys(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"apikeys": keys,
	})
}

func (a *AdminController) CreateServiceKey(c *fiber.Ctx) error {
	payload := new(ServiceKeyPayload)
	if err := c.BodyParser(payload); err != nil {
		return ErrMissingFields
	}

	key, err := a.admin.CreateServiceKey(c.UserContext(), currentAdmin(c), payload.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(key)
}

func (a *AdminController) DeleteServiceKey(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := a.admin.DeleteServiceKey(c.UserContext(), currentAdmin(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"id":      id,
	})
}

func (a *AdminController) ListUsers(c *fiber.Ctx) error {
	users, err := a.admin.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"users": users,
	})
}

func (a *AdminController) CreateUser(c *fiber.Ctx) error {
	payload := new(AddUserMessage)
	if err := c.BodyParser(payload); err != nil {
		return ErrMissingFields
	}

	user, err := a.admin.CreateUser(c.UserContext(), currentAdmin(c), *payload)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user": user,
	})
}

func (a *AdminController) ToggleAdmin(c *fiber.Ctx) error {
	user, err := a.admin.ToggleAdmin(c.UserContext(), currentAdmin(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"username": user.Username,
		"is_admin": user.IsAdmin,
	})
}

func (a *AdminController) DeleteUser(c *fiber.Ctx) error {
	if err := a.admin.DeleteUser(c.UserContext(), currentAdmin(c), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (a *AdminController) IssueReset(c *fiber.Ctx) error {
	resetURL, err := a.admin.IssueReset(c.UserContext(), currentAdmin(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"reset_url": resetURL,
	})
}

func (a *AdminController) ResetPassword(c *fiber.Ctx) error {
	payload := new(ResetPasswordPayload)
	if err := c.BodyParser(payload); err != nil {
		return ErrMissingFields
	}

	err := a.admin.ResetPassword(c.UserContext(), FinalizePasswordResetMessage{
		Token:           c.Params("token"),
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (a *AdminController) setSessionCookie(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     a.sessionCookie,
		Value:    value,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   a.secureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func currentAdmin(c *fiber.Ctx) *User {
	if user, ok := c.Locals(localsAdmin).(*User); ok {
		return user
	}
	user, _ := FromContext(c.UserContext())
	return user
}

package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterPayload is the body of POST /register.
type RegisterPayload struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
	Email    string `json:"email" form:"email"`
}

// LoginPayload is the body of POST /login.
type LoginPayload struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// TokenPayload is the body of POST /verify and POST /userinfo.
type TokenPayload struct {
	Token string `json:"token" form:"token"`
}

// APIController serves the service facing API.
type APIController struct {
	service *Service
}

func NewAPIController(service *Service) *APIController {
	if service == nil {
		panic("Missing Service in API controller...")
	}
	return &APIController{service: service}
}

func (a *APIController) Register(c *fiber.Ctx) error {
	payload := new(RegisterPayload)
	if err := c.BodyParser(payload); err != nil {
		return ErrMissingFields
	}

	if _, err := a.service.Register(c.UserContext(), RegisterUserMessage{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	}); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered",
	})
}

func (a *APIController) Login(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		return ErrMissingFields
	}

	token, err := a.service.Login(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"token": token,
	})
}

func (a *APIController) Verify(c *fiber.Ctx) error {
	payload := new(TokenPayload)
	if err := c.BodyParser(payload); err != nil {
		return ErrInvalidToken
	}

	info, err := a.service.Verify(c.UserContext(), payload.Token)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"user_id":  info.ID,
		"username": info.Username,
	})
}

func (a *APIController) UserInfo(c *fiber.Ctx) error {
	payload := new(TokenPayload)
	if err := c.BodyParser(payload); err != nil {
		return ErrInvalidToken
	}

	info, err := a.service.UserInfo(c.UserContext(), payload.Token)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"id":         info.ID,
		"username":   info.Username,
		"created_at": info.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (a *APIController) Health(c *fiber.Ctx) error {
	return c.JSON(a.service.Health())
}

package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordLength is the longest password bcrypt accepts, in bytes.
const MaxPasswordLength = 72

// BcryptHasher hashes passwords with bcrypt at a fixed cost.
type BcryptHasher struct {
	Cost int
}

var _ PasswordAuthenticator = BcryptHasher{}

// NewBcryptHasher returns a hasher; a cost outside bcrypt's range falls back
// to the package default.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return BcryptHasher{Cost: cost}
}

// HashPassword will generate a password hash
func (h BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	cost := h.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(hash), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func (h BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password hash")
	}
	return nil
}

// HashPassword hashes with the default cost.
func HashPassword(password string) (string, error) {
	return BcryptHasher{}.HashPassword(password)
}

// ComparePasswordAndHash compares using bcrypt.
func ComparePasswordAndHash(password, hash string) error {
	return BcryptHasher{}.ComparePasswordAndHash(password, hash)
}

// passwordFitsBcrypt is a validation rule rejecting passwords bcrypt would
// refuse to hash.
func passwordFitsBcrypt(value any) error {
	password, _ := value.(string)
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// validationFailure maps a message validation error to the error returned to
// callers. A password that is too long is only reported when every other
// field passed.
func validationFailure(err error) error {
	var fields validation.Errors
	if !errors.As(err, &fields) {
		return ErrMissingFields
	}

	tooLong := false
	for _, fieldErr := range fields {
		if fieldErr == nil {
			continue
		}
		if !errors.Is(fieldErr, ErrPasswordTooLong) {
			return ErrMissingFields
		}
		tooLong = true
	}

	if tooLong {
		return ErrPasswordTooLong
	}
	return ErrMissingFields
}

// hashFailure keeps client errors from the hasher intact and wraps anything
// else as internal.
func hashFailure(err error) error {
	if IsClientError(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
}

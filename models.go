package auth

import (
	"time"

	"github.com/goliatone/go-auth-service/logging"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID `bun:"id,pk,type:varchar(36)" json:"id"`
	Username      string    `bun:"username,notnull,unique,type:varchar(80)" json:"username"`
	Email         string    `bun:"email,nullzero,unique,type:varchar(120)" json:"email,omitempty"`
	PasswordHash  string    `bun:"password_hash,notnull,type:varchar(255)" json:"-"`
	IsAdmin       bool      `bun:"is_admin,notnull,default:false" json:"is_admin"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// ServiceAPIKey is a long lived key identifying a calling service.
type ServiceAPIKey struct {
	bun.BaseModel `bun:"table:service_api_keys,alias:sak"`
	ID            uuid.UUID `bun:"id,pk,type:varchar(36)" json:"id"`
	Key           string    `bun:"key,notnull,unique,type:varchar(64)" json:"-"`
	Description   string    `bun:"description,type:varchar(255)" json:"description"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Suffix returns the masked key, safe to show and log.
func (k *ServiceAPIKey) Suffix() string {
	if k == nil {
		return ""
	}
	return logging.MaskKey(k.Key)
}

// Caller returns the identity resolved for requests presenting this key.
func (k *ServiceAPIKey) Caller() *ServiceCaller {
	if k == nil {
		return nil
	}
	return &ServiceCaller{
		KeyID:       k.ID.String(),
		Description: k.Description,
		KeySuffix:   k.Suffix(),
	}
}

// ServiceCaller is the calling service resolved by the admission gate.
type ServiceCaller struct {
	KeyID       string `json:"key_id"`
	Description string `json:"description"`
	KeySuffix   string `json:"key_suffix"`
}

// UserInfo is the public view of a user returned by verify and userinfo.
type UserInfo struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func userInfoFrom(u *User) *UserInfo {
	return &UserInfo{
		ID:        u.ID.String(),
		Username:  u.Username,
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func prepareUserDefaults(u *User) {
	if u == nil {
		return
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}

func prepareServiceKeyDefaults(k *ServiceAPIKey) {
	if k == nil {
		return
	}
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
}

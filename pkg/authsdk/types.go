package authsdk

import (
	"net/url"
	"strconv"
	"time"

	"github.com/aussiebroadwan/trackr/pkg/httpx"
)

// ============================================================================
// Error Envelope
// ============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is a stable machine-readable code, see the ErrorCode constants.
	Error string `json:"error"`

	// ErrorDescription is safe to show to the end user.
	ErrorDescription string `json:"error_description"`

	// Fields lists failed validation rules, only for validation_error.
	Fields []httpx.FieldError `json:"fields,omitempty"`
}

// MessageResponse acknowledges requests that have no resource to return.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// ============================================================================
// Authentication
// ============================================================================

type RegisterRequest struct {
	Username  string `json:"username" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,password"`
	FirstName string `json:"firstname" validate:"required,max=255"`
	LastName  string `json:"lastname" validate:"required,max=255"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	// Token is the HS256 session token to send as "Authorization: Bearer".
	Token     string `json:"token"`
	TokenType string `json:"token_type"`

	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`

	// CredentialsStale advises the user to change an old password. The
	// login itself succeeded.
	CredentialsStale bool `json:"credentials_stale"`
}

type VerifyAccountRequest struct {
	Token string `json:"token" validate:"required"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,password"`
}

// ============================================================================
// Users
// ============================================================================

type UserResponse struct {
	UUID              string    `json:"uuid"`
	Username          string    `json:"username"`
	FirstName         string    `json:"firstname"`
	LastName          string    `json:"lastname"`
	Enabled           bool      `json:"enabled"`
	Verified          bool      `json:"verified"`
	Deleted           bool      `json:"deleted"`
	Locked            bool      `json:"locked"`
	FailedLogins      int       `json:"failed_logins"`
	PasswordChangedAt time.Time `json:"password_changed_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ListUsersResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// ListUsersQuery filters GET /api/v1/users. Zero values do not filter.
type ListUsersQuery struct {
	Page        int
	Size        int
	UUID        string
	Username    string
	LastName    string
	Enabled     *bool
	Verified    *bool
	Deleted     *bool
	Permissions []string
}

// Values encodes q as URL query parameters.
func (q ListUsersQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Size > 0 {
		v.Set("size", strconv.Itoa(q.Size))
	}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	setBool := func(k string, b *bool) {
		if b != nil {
			v.Set(k, strconv.FormatBool(*b))
		}
	}
	set("uuid", q.UUID)
	set("username", q.Username)
	set("lastname", q.LastName)
	setBool("enabled", q.Enabled)
	setBool("verified", q.Verified)
	setBool("deleted", q.Deleted)
	for _, p := range q.Permissions {
		v.Add("permission", p)
	}
	return v
}

// UpdateUserRequest changes only the fields that are set.
type UpdateUserRequest struct {
	Username  *string `json:"username,omitempty" validate:"omitempty,email,max=255"`
	FirstName *string `json:"firstname,omitempty" validate:"omitempty,min=1,max=255"`
	LastName  *string `json:"lastname,omitempty" validate:"omitempty,min=1,max=255"`
	Password  *string `json:"password,omitempty" validate:"omitempty,password"`
}

// UpdateMeRequest is the self-service subset of UpdateUserRequest.
type UpdateMeRequest struct {
	FirstName *string `json:"firstname,omitempty" validate:"omitempty,min=1,max=255"`
	LastName  *string `json:"lastname,omitempty" validate:"omitempty,min=1,max=255"`
}

// UpdateUserStatusRequest flips account flags. Deleted=true soft-deletes.
type UpdateUserStatusRequest struct {
	Enabled  *bool `json:"enabled,omitempty"`
	Verified *bool `json:"verified,omitempty"`
	Deleted  *bool `json:"deleted,omitempty"`
}

// ChangeRolesRequest replaces the user's roles.
type ChangeRolesRequest struct {
	RoleNames []string `json:"role_names" validate:"required,min=1,dive,required"`
}

// ============================================================================
// Roles and Permissions
// ============================================================================

type PermissionResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

type RoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

type ListRolesResponse struct {
	Roles []RoleResponse `json:"roles"`
}

type ListPermissionsResponse struct {
	Permissions []PermissionResponse `json:"permissions"`
}

package transport

import "time"

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserInfo struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

type MeResult struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type DetectionRequest struct {
	GID        string   `json:"g_id"`
	ObjectType string   `json:"object_type"`
	Color      string   `json:"color"`
	Confidence *float32 `json:"confidence,omitempty"`
}

type DetectionResult struct {
	RequestID string `json:"request_id"`
	ID        uint   `json:"id"`
	GID       string `json:"g_id"`
	RefCount  int64  `json:"ref_count"`
}

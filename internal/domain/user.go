package domain

import "time"

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FullName is the display name captured at registration, if any.
func (u User) FullName() string {
	if v, ok := u.UserMetadata["full_name"].(string); ok {
		return v
	}
	return ""
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

package service

// TokenResponse is the payload returned by login and refresh.
type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
	User         UserViewModel `json:"user"`
}

// UserViewModel represents lightweight user profile data returned to clients.
type UserViewModel struct {
	ID            int64    `json:"id"`
	Email         string   `json:"email"`
	Name          string   `json:"name,omitempty"`
	Roles         []string `json:"roles"`
	EmailVerified bool     `json:"email_verified"`
}

// APIKeyViewModel is the stored API key metadata, never the raw secret.
type APIKeyViewModel struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
	ExpiresAt   string   `json:"expires_at,omitempty"`
}

// CreatedAPIKey carries the raw key exactly once, at creation time.
type CreatedAPIKey struct {
	APIKeyViewModel
	Key string `json:"key"`
}

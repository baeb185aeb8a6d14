package client

import "time"

// WalletStatus is the polling view of one user's wallet.
type WalletStatus struct {
	Username     string `json:"username"`
	Created      bool   `json:"created"`
	Connected    bool   `json:"connected"`
	Port         int    `json:"port"`
	Container    string `json:"container"`
	Volume       bool   `json:"volume"`
	Initializing bool   `json:"initializing"`
	Ready        bool   `json:"ready"`
}

// CreateRequest starts provisioning; a non-empty Seed restores.
type CreateRequest struct {
	Seed string `json:"seed,omitempty"`
}

type CreateResponse struct {
	Container string `json:"container"`
}

type ConnectResponse struct {
	Connected bool      `json:"connected"`
	Port      int       `json:"port"`
	Container string    `json:"container"`
	StartedAt time.Time `json:"started_at"`
}

// Balance amounts are decimal strings in whole coins.
type Balance struct {
	Total    string `json:"total"`
	Unlocked string `json:"unlocked"`
}

// CleanupReport summarises one reconciliation pass.
type CleanupReport struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Cleared   int `json:"cleared"`
	Failed    int `json:"failed"`
	Connected int `json:"connected"`
}

type Health struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoginResponse struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	Token    *Token `json:"token,omitempty"`
}

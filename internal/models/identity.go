package models

// Identity is the resolved owner of a bearer token: either a registered
// account or a short-lived guest.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Guest  bool   `json:"guest"`
}

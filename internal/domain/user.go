package domain

import "strings"

// UnknownUsername is shown for messages whose author details are missing.
const UnknownUsername = "Unknown User"

// User is the author summary embedded in every chat message.
type User struct {
	ID        string `json:"id" yaml:"id"`
	Username  string `json:"username" yaml:"username"`
	FirstName string `json:"firstName,omitempty" yaml:"firstName"`
	LastName  string `json:"lastName,omitempty" yaml:"lastName"`
}

// DisplayName returns "First Last" when available, otherwise the username.
func (u User) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	if u.Username != "" {
		return u.Username
	}
	return UnknownUsername
}

// Member is a directory entry known to the chat backend.
type Member struct {
	User `yaml:",inline"`
	Role Role `json:"role" yaml:"role"`
}

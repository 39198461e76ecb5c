// Package models defines the shared domain types for kinship.
package models

import "time"

// Contact is a person in the user's personal CRM.
type Contact struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Name         string     `json:"name"`
	Organization string     `json:"organization,omitempty"`
	Role         string     `json:"role,omitempty"`
	HowWeMet     string     `json:"how_we_met,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Note is a free-text annotation attached to a contact.
type Note struct {
	ID        int64     `json:"id"`
	ContactID string    `json:"contact_id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Tag is a categorical label owned by a user.
type Tag struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

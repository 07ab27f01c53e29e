// Package models holds the wire types shared between the backend REST
// clients and the bot's renderers.
package models

import "time"

// User is a backend account, as returned by the user management API.
type User struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Phone      string    `json:"phone"`
	Balance    float64   `json:"balance"`
	DateJoined time.Time `json:"date_joined"`
	IsActive   bool      `json:"is_active"`
	IsStaff    bool      `json:"is_staff"`
}

// Product is a storefront listing.
type Product struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	ShortDescription string    `json:"short_description"`
	Price            float64   `json:"price"`
	CategoryName     string    `json:"category_name"`
	Owner            string    `json:"owner"`
	UserUsername     string    `json:"user_username"`
	Tags             []string  `json:"tags"`
	Thumbnail        string    `json:"thumbnail"`
	ApprovalStatus   string    `json:"approval_status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

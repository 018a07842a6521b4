package models

import "time"

// User is the slice of the marketplace user record this service reads and
// writes: identity for message resolution plus presence bookkeeping.
type User struct {
	ID       string     `db:"id" json:"id"`
	Name     string     `db:"name" json:"name"`
	Email    string     `db:"email" json:"email"`
	Avatar   *string    `db:"avatar" json:"avatar,omitempty"`
	IsOnline bool       `db:"is_online" json:"is_online"`
	LastSeen *time.Time `db:"last_seen" json:"last_seen,omitempty"`
}

// UserRef is the compact form embedded in broadcast payloads.
type UserRef struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar,omitempty"`
}

// Ref returns the broadcast form of the user.
func (u User) Ref() *UserRef {
	return &UserRef{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar}
}

// Skill is the slice of a marketplace skill used as message context.
type Skill struct {
	ID       string `db:"id" json:"id"`
	OwnerID  string `db:"owner_id" json:"owner_id"`
	Title    string `db:"title" json:"title"`
	Category string `db:"category" json:"category"`
}

// SkillRef is the compact form embedded in broadcast payloads.
type SkillRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Ref returns the broadcast form of the skill.
func (s Skill) Ref() *SkillRef {
	return &SkillRef{ID: s.ID, Title: s.Title, Category: s.Category}
}

package domain

import "time"

// User is the remote-store account document checked at login.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email" validate:"required,email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Password  string    `json:"password,omitempty"` // bcrypt hash, stripped from responses
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) SessionUser() SessionUser {
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return SessionUser{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  role,
	}
}

package models

// Role роль пользователя
type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleSeller   Role = "Satici"
	RoleCustomer Role = "Kullanici"
)

// User представляет пользователя
type User struct {
	ID       int64
	Email    string
	PassHash []byte
	Role     Role
}

// Actor идентичность вызывающего, передаётся явно в каждую операцию
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool  { return a.Role == RoleAdmin }
func (a Actor) IsSeller() bool { return a.Role == RoleSeller }

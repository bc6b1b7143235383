package model

type UserRole string

const (
	Student UserRole = "student"
	Admin   UserRole = "admin"
)

// swagger:model User
// Code 为学生的 DNI（管理员为 ADMIN），统一大写，创建后不可修改
type User struct {
	BaseModel
	Code         string   `gorm:"column:dni;size:32;uniqueIndex;not null" json:"dni"`
	Name         string   `gorm:"size:100;not null" json:"name"`
	PasswordHash *string  `gorm:"size:100" json:"-"`
	Avatar       *string  `gorm:"size:255" json:"avatar"`
	Role         UserRole `gorm:"size:16;default:'student';index" json:"role"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Role == Admin
}

package models

// User 代表系统中的用户。
type User struct {
	BaseModel
	Username     string `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	Email        string `gorm:"type:varchar(100);index" json:"email,omitempty"` // 可为空，唯一性由注册流程检查
	Nickname     string `gorm:"type:varchar(100)" json:"nickname,omitempty"`
	AvatarURL    string `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	Verified     bool   `gorm:"not null;default:false" json:"verified"`
}

// UserBasicInfo holds minimal public information about a user.
// It is what other users get to see: friend lists, request senders, search results.
type UserBasicInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// BasicInfo projects a user onto its public fields.
func (u *User) BasicInfo() UserBasicInfo {
	return UserBasicInfo{
		ID:        u.ID,
		Username:  u.Username,
		Nickname:  u.Nickname,
		AvatarURL: u.AvatarURL,
	}
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}

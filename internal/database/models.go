package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 角色常量。
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Base 为所有表提供字符串 UUID 主键与时间戳。
type Base struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate 在插入前生成主键。
func (b *Base) BeforeCreate(_ *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// User 表示可以登录后台的账号，Role 决定是否具有管理权限。
type User struct {
	Base
	Email              string `gorm:"uniqueIndex;size:255" json:"email"`
	Name               string `gorm:"size:128" json:"name"`
	PasswordHash       string `gorm:"size:255" json:"-"`
	Role               string `gorm:"size:32;default:user" json:"role"`
	Provider           string `gorm:"size:32" json:"provider"`
	MustChangePassword bool   `gorm:"default:false" json:"mustChangePassword"`
}

// IsAdmin reports whether the account may use the admin surface.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Socials 站点社交链接。
type Socials struct {
	GitHub   string `json:"github,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Email    string `json:"email,omitempty"`
	LeetCode string `json:"leetcode,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
}

// Theme 站点主题配色。
type Theme struct {
	Mode            string `json:"mode,omitempty"`
	PrimaryColor    string `json:"primaryColor,omitempty"`
	SecondaryColor  string `json:"secondaryColor,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
}

// SiteConfig 全站展示配置，应用层保证至多一行。
type SiteConfig struct {
	Base
	OwnerName  string                      `gorm:"size:128" json:"ownerName"`
	Title      string                      `gorm:"size:255" json:"title"`
	Tagline    string                      `gorm:"size:255" json:"tagline"`
	Socials    datatypes.JSONType[Socials] `json:"socials"`
	Theme      datatypes.JSONType[Theme]   `json:"theme"`
	CVURL      string                      `gorm:"column:cv_url;size:512" json:"cvUrl"`
	CVPathname string                      `gorm:"column:cv_pathname;size:255" json:"cvPathname,omitempty"`
}

// About 关于我段落。
type About struct {
	Base
	Title          string `gorm:"size:255" json:"title"`
	Content        string `gorm:"type:text" json:"content"`
	Avatar         string `gorm:"size:512" json:"avatar"`
	AvatarPathname string `gorm:"size:255" json:"avatarPathname,omitempty"`
	Order          int    `gorm:"column:sort_order;index" json:"order"`
}

// Skill 技能条目，前台按 Category 分组展示。
type Skill struct {
	Base
	Name     string `gorm:"size:128" json:"name"`
	Category string `gorm:"size:128;index" json:"category"`
	Level    int    `json:"level"`
	Icon     string `gorm:"size:512" json:"icon"`
	Order    int    `gorm:"column:sort_order;index" json:"order"`
}

// Experience 工作经历，EndDate 为空表示至今。
type Experience struct {
	Base
	Role      string                      `gorm:"size:255" json:"role"`
	Company   string                      `gorm:"size:255" json:"company"`
	StartDate string                      `gorm:"size:64" json:"startDate"`
	EndDate   *string                     `gorm:"size:64" json:"endDate"`
	Bullets   datatypes.JSONSlice[string] `json:"bullets"`
	Order     int                         `gorm:"column:sort_order;index" json:"order"`
}

// Project 作品条目。
type Project struct {
	Base
	Title         string                      `gorm:"size:255" json:"title"`
	Description   string                      `gorm:"type:text" json:"description"`
	TechStack     datatypes.JSONSlice[string] `json:"techStack"`
	LiveURL       string                      `gorm:"column:live_url;size:512" json:"liveUrl"`
	GitHubURL     string                      `gorm:"column:github_url;size:512" json:"githubUrl"`
	ImageURL      string                      `gorm:"column:image_url;size:512" json:"imageUrl"`
	ImagePathname string                      `gorm:"size:255" json:"imagePathname,omitempty"`
	Order         int                         `gorm:"column:sort_order;index" json:"order"`
}

// ContactMessage 访客留言，只追加，仅允许管理员标记已读或删除。
type ContactMessage struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"size:128" json:"name"`
	Email     string    `gorm:"size:255;index" json:"email"`
	Message   string    `gorm:"type:text" json:"message"`
	IP        string    `gorm:"size:64" json:"-"`
	Read      bool      `gorm:"column:is_read;default:false" json:"read"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

// BeforeCreate 在插入前生成主键。
func (m *ContactMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Sortable 由支持拖拽排序的实体实现。
type Sortable interface {
	GetID() string
	GetOrder() int
	SetOrder(order int)
}

func (b Base) GetID() string { return b.ID }

func (a About) GetOrder() int        { return a.Order }
func (a *About) SetOrder(order int)  { a.Order = order }
func (s Skill) GetOrder() int        { return s.Order }
func (s *Skill) SetOrder(order int)  { s.Order = order }
func (e Experience) GetOrder() int   { return e.Order }
func (e *Experience) SetOrder(o int) { e.Order = o }
func (p Project) GetOrder() int      { return p.Order }
func (p *Project) SetOrder(o int)    { p.Order = o }

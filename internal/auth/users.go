package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"portfolio/internal/apperr"
	"portfolio/internal/database"
)

// Users 读写登录账号。
type Users struct {
	db *gorm.DB
}

// NewUsers 构造账号仓库。
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// ByEmail 按邮箱（不区分大小写）查找账号。
func (u *Users) ByEmail(ctx context.Context, email string) (*database.User, error) {
	var user database.User
	err := u.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to load user", err)
	}
	return &user, nil
}

// ByID 按主键查找账号。
func (u *Users) ByID(ctx context.Context, id string) (*database.User, error) {
	var user database.User
	err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to load user", err)
	}
	return &user, nil
}

// UpsertExternal 为第三方登录查找或创建账号。
// 新账号按管理员邮箱列表分配角色；已存在的账号只会被提升，不会被降级。
func (u *Users) UpsertExternal(ctx context.Context, ident ExternalIdentity, adminEmails []string) (*database.User, error) {
	role := RoleFor(ident.Email, adminEmails)

	existing, err := u.ByEmail(ctx, ident.Email)
	switch {
	case err == nil:
		if role == database.RoleAdmin && !existing.IsAdmin() {
			if err := u.db.WithContext(ctx).Model(existing).Update("role", database.RoleAdmin).Error; err != nil {
				return nil, apperr.E(apperr.KindPersistence, "Failed to update user", err)
			}
			existing.Role = database.RoleAdmin
		}
		return existing, nil
	case !apperr.Is(err, apperr.KindNotFound):
		return nil, err
	}

	user := database.User{
		Email:    ident.Email,
		Name:     ident.Name,
		Role:     role,
		Provider: ident.Provider,
	}
	if err := u.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to create user", err)
	}
	return &user, nil
}

// EnsureAdmin 创建或提升管理员账号，并设置一次性密码（首次登录后必须修改）。
func (u *Users) EnsureAdmin(ctx context.Context, email, name string) (*database.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, "", apperr.Validation("Email is required", map[string]string{"email": "required"})
	}

	password, err := RandomPassword()
	if err != nil {
		return nil, "", err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	var user database.User
	err = u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = database.User{
				Email:              email,
				Name:               name,
				Role:               database.RoleAdmin,
				Provider:           "password",
				PasswordHash:       hash,
				MustChangePassword: true,
			}
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&user).Updates(map[string]any{
			"role":                 database.RoleAdmin,
			"password_hash":        hash,
			"must_change_password": true,
		}).Error; err != nil {
			return err
		}
		user.Role = database.RoleAdmin
		user.PasswordHash = hash
		user.MustChangePassword = true
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("ensure admin %s: %w", email, err)
	}
	return &user, password, nil
}

// ChangePassword 校验当前密码后更新，并清除强制改密标记。
func (u *Users) ChangePassword(ctx context.Context, user *database.User, current, next string) error {
	if !CheckPasswordHash(current, user.PasswordHash) {
		return apperr.E(apperr.KindUnauthorized, "Current password is incorrect", nil)
	}
	if len(next) < MinPasswordLen || len(next) > MaxPasswordLen {
		return apperr.Validation("Invalid input: newPassword", map[string]string{
			"newPassword": fmt.Sprintf("must be %d-%d characters", MinPasswordLen, MaxPasswordLen),
		})
	}
	if next == current {
		return apperr.Validation("New password must be different from current password", nil)
	}

	hash, err := HashPassword(next)
	if err != nil {
		return apperr.E(apperr.KindInternal, "Failed to update password", err)
	}
	if err := u.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"password_hash":        hash,
		"must_change_password": false,
	}).Error; err != nil {
		return apperr.E(apperr.KindPersistence, "Failed to update password", err)
	}
	user.PasswordHash = hash
	user.MustChangePassword = false
	return nil
}

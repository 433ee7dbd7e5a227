package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// 上传目录：图片放在 projects，PDF（简历）放在 uploads。
const (
	FolderProjects = "projects"
	FolderUploads  = "uploads"
)

// PublicFolders 是允许匿名读取与删除的目录。
var PublicFolders = []string{FolderProjects, FolderUploads}

const maxPathnameLen = 200

// ErrInvalidPathname 表示对象路径不合法。
var ErrInvalidPathname = errors.New("invalid pathname")

// NewObjectKey 生成 <folder>/<unix-ms>-<slug>-<random>.<ext>。
// ext 不带点；为空时沿用原文件名的扩展名。
func NewObjectKey(folder, filename, ext string, now time.Time) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	name := slug.Make(base)
	if name == "" {
		name = "file"
	}
	if len(name) > 60 {
		name = strings.Trim(name[:60], "-")
	}
	if ext == "" {
		ext = strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	key := fmt.Sprintf("%s/%d-%s-%s", folder, now.UnixMilli(), name, random)
	if ext != "" {
		key += "." + ext
	}
	return key
}

// ValidatePathname 校验待删除的对象路径：必须位于公开目录下，不允许目录穿越。
func ValidatePathname(pathname string) error {
	if pathname == "" || !utf8.ValidString(pathname) {
		return ErrInvalidPathname
	}
	if len(pathname) > maxPathnameLen {
		return ErrInvalidPathname
	}
	if strings.Contains(pathname, "..") || strings.Contains(pathname, "\\") || strings.Contains(pathname, "//") {
		return ErrInvalidPathname
	}
	for _, folder := range PublicFolders {
		rest, ok := strings.CutPrefix(pathname, folder+"/")
		if ok && rest != "" {
			return nil
		}
	}
	return ErrInvalidPathname
}

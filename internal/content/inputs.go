package content

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"gorm.io/datatypes"

	"portfolio/internal/apperr"
	"portfolio/internal/database"
)

// Input 是列表资源的请求体：创建时转换为实体，更新时只输出出现过的字段。
// 请求体中的 id 字段不会被解码，因此更新无法改写主键。
type Input[T any] interface {
	Validate(create bool) error
	Model() T
	Updates() map[string]any
	ExplicitOrder() *int
}

// Bullets 兼容字符串数组与换行分隔的字符串两种写法。
type Bullets []string

// UnmarshalJSON 实现 json.Unmarshaler。
func (b *Bullets) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*b = normalizeLines(list)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("bullets must be a string or a list of strings")
	}
	*b = normalizeLines(strings.Split(text, "\n"))
	return nil
}

func normalizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// fieldErrors 收集字段级错误，生成 "Invalid input: a, b" 形式的消息。
type fieldErrors map[string]string

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return apperr.Validation("Invalid input: "+strings.Join(names, ", "), f)
}

func blank(s *string) bool { return s == nil || strings.TrimSpace(*s) == "" }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func setString(m map[string]any, column string, v *string) {
	if v != nil {
		m[column] = strings.TrimSpace(*v)
	}
}

func setOrder(m map[string]any, v *int) {
	if v != nil {
		m[orderColumn] = *v
	}
}

// AboutInput 关于我段落。
type AboutInput struct {
	Title          *string `json:"title"`
	Content        *string `json:"content"`
	Avatar         *string `json:"avatar"`
	AvatarPathname *string `json:"avatarPathname"`
	Order          *int    `json:"order"`
}

func (in *AboutInput) Validate(create bool) error {
	errs := fieldErrors{}
	if (create || in.Title != nil) && blank(in.Title) {
		errs["title"] = "required"
	}
	return errs.err()
}

func (in *AboutInput) Model() database.About {
	return database.About{
		Title:          deref(in.Title),
		Content:        deref(in.Content),
		Avatar:         deref(in.Avatar),
		AvatarPathname: deref(in.AvatarPathname),
	}
}

func (in *AboutInput) Updates() map[string]any {
	m := map[string]any{}
	setString(m, "title", in.Title)
	setString(m, "content", in.Content)
	setString(m, "avatar", in.Avatar)
	setString(m, "avatar_pathname", in.AvatarPathname)
	setOrder(m, in.Order)
	return m
}

func (in *AboutInput) ExplicitOrder() *int { return in.Order }

// SkillInput 技能条目。
type SkillInput struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Level    *int    `json:"level"`
	Icon     *string `json:"icon"`
	Order    *int    `json:"order"`
}

func (in *SkillInput) Validate(create bool) error {
	errs := fieldErrors{}
	if (create || in.Name != nil) && blank(in.Name) {
		errs["name"] = "required"
	}
	if (create || in.Category != nil) && blank(in.Category) {
		errs["category"] = "required"
	}
	switch {
	case in.Level == nil && create:
		errs["level"] = "required"
	case in.Level != nil && (*in.Level < 0 || *in.Level > 100):
		errs["level"] = "must be between 0 and 100"
	}
	return errs.err()
}

func (in *SkillInput) Model() database.Skill {
	s := database.Skill{
		Name:     deref(in.Name),
		Category: deref(in.Category),
		Icon:     deref(in.Icon),
	}
	if in.Level != nil {
		s.Level = *in.Level
	}
	return s
}

func (in *SkillInput) Updates() map[string]any {
	m := map[string]any{}
	setString(m, "name", in.Name)
	setString(m, "category", in.Category)
	setString(m, "icon", in.Icon)
	if in.Level != nil {
		m["level"] = *in.Level
	}
	setOrder(m, in.Order)
	return m
}

func (in *SkillInput) ExplicitOrder() *int { return in.Order }

// ExperienceInput 工作经历。endDate 显式传 null 或空字符串表示至今。
type ExperienceInput struct {
	Role      *string          `json:"role"`
	Company   *string          `json:"company"`
	StartDate *string          `json:"startDate"`
	EndDate   optional[string] `json:"endDate"`
	Bullets   *Bullets         `json:"bullets"`
	Order     *int             `json:"order"`
}

func (in *ExperienceInput) Validate(create bool) error {
	errs := fieldErrors{}
	if (create || in.Role != nil) && blank(in.Role) {
		errs["role"] = "required"
	}
	if (create || in.Company != nil) && blank(in.Company) {
		errs["company"] = "required"
	}
	if (create || in.StartDate != nil) && blank(in.StartDate) {
		errs["startDate"] = "required"
	}
	return errs.err()
}

func (in *ExperienceInput) endDate() *string {
	if in.EndDate.Value == nil || strings.TrimSpace(*in.EndDate.Value) == "" {
		return nil
	}
	v := strings.TrimSpace(*in.EndDate.Value)
	return &v
}

func (in *ExperienceInput) bullets() datatypes.JSONSlice[string] {
	if in.Bullets == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](*in.Bullets)
}

func (in *ExperienceInput) Model() database.Experience {
	return database.Experience{
		Role:      deref(in.Role),
		Company:   deref(in.Company),
		StartDate: deref(in.StartDate),
		EndDate:   in.endDate(),
		Bullets:   in.bullets(),
	}
}

func (in *ExperienceInput) Updates() map[string]any {
	m := map[string]any{}
	setString(m, "role", in.Role)
	setString(m, "company", in.Company)
	setString(m, "start_date", in.StartDate)
	if in.EndDate.Set {
		m["end_date"] = in.endDate()
	}
	if in.Bullets != nil {
		m["bullets"] = in.bullets()
	}
	setOrder(m, in.Order)
	return m
}

func (in *ExperienceInput) ExplicitOrder() *int { return in.Order }

// ProjectInput 作品条目。链接非空时必须是绝对 URL；更新时传空字符串表示清除。
type ProjectInput struct {
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	TechStack     *[]string `json:"techStack"`
	LiveURL       *string   `json:"liveUrl"`
	GitHubURL     *string   `json:"githubUrl"`
	ImageURL      *string   `json:"imageUrl"`
	ImagePathname *string   `json:"imagePathname"`
	Order         *int      `json:"order"`
}

func (in *ProjectInput) Validate(create bool) error {
	errs := fieldErrors{}
	if (create || in.Title != nil) && blank(in.Title) {
		errs["title"] = "required"
	}
	if (create || in.Description != nil) && blank(in.Description) {
		errs["description"] = "required"
	}
	for name, v := range map[string]*string{"liveUrl": in.LiveURL, "githubUrl": in.GitHubURL, "imageUrl": in.ImageURL} {
		if s := deref(v); s != "" && !isAbsoluteURL(s) {
			errs[name] = "must be a valid URL"
		}
	}
	return errs.err()
}

func (in *ProjectInput) techStack() datatypes.JSONSlice[string] {
	if in.TechStack == nil {
		return datatypes.JSONSlice[string]{}
	}
	return datatypes.JSONSlice[string](normalizeLines(*in.TechStack))
}

func (in *ProjectInput) Model() database.Project {
	return database.Project{
		Title:         deref(in.Title),
		Description:   deref(in.Description),
		TechStack:     in.techStack(),
		LiveURL:       deref(in.LiveURL),
		GitHubURL:     deref(in.GitHubURL),
		ImageURL:      deref(in.ImageURL),
		ImagePathname: deref(in.ImagePathname),
	}
}

func (in *ProjectInput) Updates() map[string]any {
	m := map[string]any{}
	setString(m, "title", in.Title)
	setString(m, "description", in.Description)
	if in.TechStack != nil {
		m["tech_stack"] = in.techStack()
	}
	setString(m, "live_url", in.LiveURL)
	setString(m, "github_url", in.GitHubURL)
	setString(m, "image_url", in.ImageURL)
	setString(m, "image_pathname", in.ImagePathname)
	setOrder(m, in.Order)
	return m
}

func (in *ProjectInput) ExplicitOrder() *int { return in.Order }

// SiteConfigInput 站点配置。socials 与 theme 整体替换。
type SiteConfigInput struct {
	OwnerName  *string           `json:"ownerName"`
	Title      *string           `json:"title"`
	Tagline    *string           `json:"tagline"`
	Socials    *database.Socials `json:"socials"`
	Theme      *database.Theme   `json:"theme"`
	CVURL      *string           `json:"cvUrl"`
	CVPathname *string           `json:"cvPathname"`
}

func (in *SiteConfigInput) Validate() error {
	errs := fieldErrors{}
	if s := deref(in.CVURL); s != "" && !isAbsoluteURL(s) {
		errs["cvUrl"] = "must be a valid URL"
	}
	return errs.err()
}

func (in *SiteConfigInput) Model() database.SiteConfig {
	cfg := database.SiteConfig{
		OwnerName:  deref(in.OwnerName),
		Title:      deref(in.Title),
		Tagline:    deref(in.Tagline),
		CVURL:      deref(in.CVURL),
		CVPathname: deref(in.CVPathname),
	}
	if in.Socials != nil {
		cfg.Socials = datatypes.NewJSONType(*in.Socials)
	}
	if in.Theme != nil {
		cfg.Theme = datatypes.NewJSONType(*in.Theme)
	}
	return cfg
}

func (in *SiteConfigInput) Updates() map[string]any {
	m := map[string]any{}
	setString(m, "owner_name", in.OwnerName)
	setString(m, "title", in.Title)
	setString(m, "tagline", in.Tagline)
	if in.Socials != nil {
		m["socials"] = datatypes.NewJSONType(*in.Socials)
	}
	if in.Theme != nil {
		m["theme"] = datatypes.NewJSONType(*in.Theme)
	}
	setString(m, "cv_url", in.CVURL)
	setString(m, "cv_pathname", in.CVPathname)
	return m
}

// optional 区分“未传”与“显式传 null”。
type optional[T any] struct {
	Set   bool
	Value *T
}

// UnmarshalJSON 实现 json.Unmarshaler，仅在字段出现时被调用。
func (o *optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

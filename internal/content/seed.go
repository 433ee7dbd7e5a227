package content

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"portfolio/internal/apperr"
	"portfolio/internal/database"
)

// SeedReport 记录每种资源新写入的条目数。
type SeedReport struct {
	SiteConfig bool
	About      int
	Skills     int
	Experience int
	Projects   int
}

// Seed 写入演示内容。已有数据的资源会被跳过，重复执行不会产生重复条目。
func Seed(ctx context.Context, db *gorm.DB) (SeedReport, error) {
	var report SeedReport

	if err := NewSiteConfigStore(db).Create(ctx, &database.SiteConfig{
		OwnerName: "Jane Doe",
		Title:     "Jane Doe | Backend Engineer",
		Tagline:   "I build reliable services and the tools around them.",
		Socials: datatypes.NewJSONType(database.Socials{
			GitHub: "https://github.com/janedoe",
			Email:  "jane@example.com",
		}),
		Theme: datatypes.NewJSONType(database.Theme{Mode: "dark", PrimaryColor: "#38bdf8"}),
	}); err == nil {
		report.SiteConfig = true
	} else if !apperr.Is(err, apperr.KindConflict) {
		return report, err
	}

	var err error
	if report.About, err = seedList(ctx, NewOrderedStore[database.About](db, "about"), []database.About{
		{Title: "Hello", Content: "Backend engineer focused on distributed systems."},
		{Title: "Off the clock", Content: "Climbing, coffee and open source."},
	}); err != nil {
		return report, err
	}
	if report.Skills, err = seedList(ctx, NewOrderedStore[database.Skill](db, "skill"), []database.Skill{
		{Name: "Go", Category: "Backend", Level: 90},
		{Name: "PostgreSQL", Category: "Backend", Level: 80},
		{Name: "TypeScript", Category: "Frontend", Level: 70},
		{Name: "Kubernetes", Category: "DevOps", Level: 65},
	}); err != nil {
		return report, err
	}
	if report.Experience, err = seedList(ctx, NewOrderedStore[database.Experience](db, "experience"), []database.Experience{
		{
			Role: "Senior Engineer", Company: "Acme Cloud", StartDate: "2021-03",
			Bullets: datatypes.JSONSlice[string]{"Led the billing platform rewrite", "Cut p99 latency by 40%"},
		},
		{
			Role: "Software Engineer", Company: "Initech", StartDate: "2018-07", EndDate: ptr("2021-02"),
			Bullets: datatypes.JSONSlice[string]{"Built the internal job scheduler"},
		},
	}); err != nil {
		return report, err
	}
	if report.Projects, err = seedList(ctx, NewOrderedStore[database.Project](db, "project"), []database.Project{
		{
			Title: "Portfolio", Description: "This site: a Go API with an admin dashboard.",
			TechStack: datatypes.JSONSlice[string]{"Go", "PostgreSQL", "MinIO"},
			GitHubURL: "https://github.com/janedoe/portfolio",
		},
	}); err != nil {
		return report, err
	}
	return report, nil
}

func seedList[T any, PT interface {
	*T
	database.Sortable
}](ctx context.Context, store *OrderedStore[T, PT], items []T) (int, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(new(T)).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", store.Name(), err)
	}
	if count > 0 {
		return 0, nil
	}
	for i := range items {
		if err := store.Create(ctx, &items[i], nil); err != nil {
			return i, err
		}
	}
	return len(items), nil
}

func ptr[T any](v T) *T { return &v }

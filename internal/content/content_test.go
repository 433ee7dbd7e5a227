package content

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portfolio/internal/apperr"
	"portfolio/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func skillNames(items []database.Skill) []string {
	names := make([]string, 0, len(items))
	for _, s := range items {
		names = append(names, s.Name)
	}
	return names
}

func TestOrderedStore_CreateAppendsAtCount(t *testing.T) {
	ctx := context.Background()
	store := NewOrderedStore[database.Skill](newTestDB(t), "skill")

	for _, name := range []string{"Go", "SQL", "Redis"} {
		require.NoError(t, store.Create(ctx, &database.Skill{Name: name, Category: "Backend", Level: 80}, nil))
	}

	fourth := database.Skill{Name: "Kafka", Category: "Backend", Level: 60}
	require.NoError(t, store.Create(ctx, &fourth, nil))
	assert.Equal(t, 3, fourth.Order)
	assert.NotEmpty(t, fourth.ID)

	explicit := 10
	pinned := database.Skill{Name: "C", Category: "Languages", Level: 85}
	require.NoError(t, store.Create(ctx, &pinned, &explicit))
	assert.Equal(t, 10, pinned.Order)
}

func TestOrderedStore_ListSortsByOrderThenInsertion(t *testing.T) {
	ctx := context.Background()
	store := NewOrderedStore[database.Skill](newTestDB(t), "skill")

	zero, one := 0, 1
	require.NoError(t, store.Create(ctx, &database.Skill{Name: "b"}, &one))
	require.NoError(t, store.Create(ctx, &database.Skill{Name: "a"}, &zero))
	require.NoError(t, store.Create(ctx, &database.Skill{Name: "c"}, &one))

	items, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, skillNames(items))
}

func TestOrderedStore_ReorderAppliesPermutation(t *testing.T) {
	ctx := context.Background()
	store := NewOrderedStore[database.Project](newTestDB(t), "project")

	var ids []string
	for _, title := range []string{"alpha", "beta", "gamma"} {
		p := database.Project{Title: title, Description: "d", TechStack: datatypes.JSONSlice[string]{"go"}}
		require.NoError(t, store.Create(ctx, &p, nil))
		ids = append(ids, p.ID)
	}

	items, err := store.Reorder(ctx, Move(ids, 2, 0))
	require.NoError(t, err)

	titles := make([]string, 0, len(items))
	for i, p := range items {
		titles = append(titles, p.Title)
		assert.Equal(t, i, p.Order)
	}
	assert.Equal(t, []string{"gamma", "alpha", "beta"}, titles)
	assert.Equal(t, []string{"go"}, []string(items[0].TechStack))
}

func TestOrderedStore_ReorderIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewOrderedStore[database.About](newTestDB(t), "about")

	first := database.About{Title: "one"}
	second := database.About{Title: "two"}
	require.NoError(t, store.Create(ctx, &first, nil))
	require.NoError(t, store.Create(ctx, &second, nil))

	_, err := store.Reorder(ctx, []OrderUpdate{
		{ID: second.ID, Order: 0},
		{ID: "missing", Order: 1},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "one", items[0].Title)
	assert.Equal(t, 0, items[0].Order)
	assert.Equal(t, 1, items[1].Order)
}

func TestOrderedStore_ReorderRejectsBadPayload(t *testing.T) {
	store := NewOrderedStore[database.About](newTestDB(t), "about")

	_, err := store.Reorder(context.Background(), nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = store.Reorder(context.Background(), []OrderUpdate{{ID: "a", Order: 0}, {ID: "a", Order: 1}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestOrderedStore_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewOrderedStore[database.Experience](newTestDB(t), "experience")

	exp := database.Experience{Role: "Engineer", Company: "Acme", StartDate: "Aug 2024", Bullets: datatypes.JSONSlice[string]{"shipped"}}
	require.NoError(t, store.Create(ctx, &exp, nil))

	updated, previous, err := store.Update(ctx, exp.ID, map[string]any{"company": "Globex"})
	require.NoError(t, err)
	assert.Equal(t, "Globex", updated.Company)
	assert.Equal(t, "Engineer", updated.Role)
	assert.Equal(t, "Acme", previous.Company)

	_, _, err = store.Update(ctx, "nope", map[string]any{"company": "x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = store.Delete(ctx, exp.ID)
	require.NoError(t, err)
	_, err = store.Get(ctx, exp.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = store.Delete(ctx, exp.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSiteConfigStore_SingletonLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSiteConfigStore(newTestDB(t))

	cfg, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, _, err = store.Update(ctx, map[string]any{"title": "x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	first := database.SiteConfig{
		OwnerName: "Ada",
		Title:     "Portfolio",
		Socials:   datatypes.NewJSONType(database.Socials{GitHub: "https://github.com/ada"}),
	}
	require.NoError(t, store.Create(ctx, &first))

	err = store.Create(ctx, &database.SiteConfig{OwnerName: "Bob"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	updated, previous, err := store.Update(ctx, map[string]any{"tagline": "Builder"})
	require.NoError(t, err)
	assert.Equal(t, "Builder", updated.Tagline)
	assert.Equal(t, "", previous.Tagline)
	assert.Equal(t, "https://github.com/ada", updated.Socials.Data().GitHub)

	_, err = store.Delete(ctx)
	require.NoError(t, err)
	_, err = store.Delete(ctx)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, store.Create(ctx, &database.SiteConfig{OwnerName: "Bob"}))
}

func TestMove(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}

	cases := []struct {
		name     string
		from, to int
		want     []string
	}{
		{"down", 0, 2, []string{"b", "c", "a", "d"}},
		{"up", 3, 1, []string{"a", "d", "b", "c"}},
		{"same", 1, 1, []string{"a", "b", "c", "d"}},
		{"clamped", -4, 99, []string{"b", "c", "d", "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Move(ids, tc.from, tc.to)
			require.Len(t, got, len(tc.want))
			for i, u := range got {
				assert.Equal(t, tc.want[i], u.ID)
				assert.Equal(t, i, u.Order)
			}
		})
	}

	assert.Empty(t, Move(nil, 0, 0))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
}

func TestSeed_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first, err := Seed(ctx, db)
	require.NoError(t, err)
	assert.True(t, first.SiteConfig)
	assert.Equal(t, 4, first.Skills)

	second, err := Seed(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{}, second)

	skills, err := NewOrderedStore[database.Skill](db, "skill").List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "PostgreSQL", "TypeScript", "Kubernetes"}, skillNames(skills))
}

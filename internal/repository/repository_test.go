package repository

import (
	"errors"
	"testing"

	"archive-depot-go/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接是独立的数据库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Archive{}, &model.SystemConfiguration{}))
	return db
}

func TestArchiveRepositoryCRUD(t *testing.T) {
	repo := NewArchiveRepository(newTestDB(t))

	a := &model.Archive{Name: "spring_7.0.zip", ExtractTo: "engine/7.0", Hash: "0123456789abcdef0123456789abcdef", Size: 10}
	require.NoError(t, repo.Create(a))
	require.NotZero(t, a.ID)

	got, err := repo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "spring_7.0.zip", got.Name)
	assert.Equal(t, "engine/7.0", got.ExtractTo)

	got.ExtractTo = "engine/7.1"
	require.NoError(t, repo.Update(got))
	again, err := repo.FindByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "engine/7.1", again.ExtractTo)

	require.NoError(t, repo.Create(&model.Archive{Name: "evo.zip", ExtractTo: "mods/evo", Hash: "h2"}))
	all, err := repo.FindAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)

	require.NoError(t, repo.Delete(a.ID))
	_, err = repo.FindByID(a.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestArchiveRepositoryMissingRows(t *testing.T) {
	repo := NewArchiveRepository(newTestDB(t))

	_, err := repo.FindByID(404)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.True(t, errors.Is(repo.Delete(404), gorm.ErrRecordNotFound))
	assert.True(t, errors.Is(repo.Update(&model.Archive{ID: 404, Name: "x"}), gorm.ErrRecordNotFound))
}

func TestSystemConfigRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewSystemConfigRepository(db)

	first := &model.SystemConfiguration{Name: "evo-7.0", EngineArchiveID: 1, ModArchiveID: 2, EngineHash: "e", ModHash: "m", Variant: model.DefaultVariant}
	second := &model.SystemConfiguration{Name: "evo-7.0-b", EngineArchiveID: 1, ModArchiveID: 2, EngineHash: "e", ModHash: "m", Variant: "bench"}
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(second))
	assert.NotEqual(t, first.ID, second.ID)

	got, err := repo.FindByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, "bench", got.Variant)
	assert.Equal(t, uint(1), got.EngineArchiveID)

	all, err := repo.FindAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.FindByID(99)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

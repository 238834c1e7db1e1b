package database

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/models"
)

func TestConnectRedisPingsServer(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client, err := ConnectRedis(context.Background(), "redis://"+mini.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestConnectRedisRejectsEmptyURL(t *testing.T) {
	_, err := ConnectRedis(context.Background(), "")
	require.Error(t, err)
}

func TestConnectSQLiteDefaultsToMemory(t *testing.T) {
	db, err := ConnectSQLite("")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
}

func TestConnectSQLiteTranslatesUniqueViolations(t *testing.T) {
	db, err := ConnectSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Credential{}))

	first := models.Credential{PrincipalID: uuid.NewString(), Email: "teacher@x.com", PasswordHash: []byte("hash")}
	require.NoError(t, db.Create(&first).Error)

	second := models.Credential{PrincipalID: uuid.NewString(), Email: "teacher@x.com", PasswordHash: []byte("hash")}
	require.ErrorIs(t, db.Create(&second).Error, gorm.ErrDuplicatedKey)
}

func TestConnectPostgresRequiresDSN(t *testing.T) {
	_, err := Connect("postgres", "")
	require.Error(t, err)
}

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/companion-bot/internal/migrations"
	"github.com/magabrotheeeer/companion-bot/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и накатывает миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	require.NoError(t, CheckDatabaseReady(storage))
	return storage
}

// testFactory создает тестовые данные через методы хранилища.
type testFactory struct {
	t       *testing.T
	storage *Storage
	nextTG  int64
}

func newTestFactory(t *testing.T, storage *Storage) *testFactory {
	return &testFactory{t: t, storage: storage, nextTG: 1000}
}

func (f *testFactory) user() *models.User {
	f.t.Helper()
	f.nextTG++
	u, err := f.storage.UpsertUser(context.Background(), models.Identity{
		TelegramID: f.nextTG,
		Username:   "user",
		FirstName:  "Иван",
	})
	require.NoError(f.t, err)
	return u
}

func (f *testFactory) subscription(userID int64, status models.SubscriptionStatus, start, end time.Time) *models.Subscription {
	f.t.Helper()
	sub := &models.Subscription{UserID: userID, Status: status, StartTime: start, EndTime: end}
	require.NoError(f.t, f.storage.CreateSubscription(context.Background(), sub))
	return sub
}

func (f *testFactory) persona(userID int64, name string) *models.Persona {
	f.t.Helper()
	p := &models.Persona{
		UserID:      userID,
		Name:        name,
		Age:         23,
		Personality: "добрая и веселая",
		Appearance:  "светлые волосы, голубые глаза",
		Interests:   "книги",
		Background:  "студентка",
	}
	require.NoError(f.t, f.storage.CreatePersona(context.Background(), p))
	return p
}

package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-homework-api/internal/config"
	"github.com/noah-isme/gema-homework-api/internal/dto"
	"github.com/noah-isme/gema-homework-api/internal/models"
	"github.com/noah-isme/gema-homework-api/internal/repository"
	"github.com/noah-isme/gema-homework-api/internal/store"
)

const testPassword = "secret123"

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          "test-secret",
		JWTTTL:             time.Hour,
		HomeworkVisibility: config.VisibilityClassScoped,
		RefreshMode:        config.RefreshLive,
		SessionIdleTTL:     30 * time.Minute,
	}
}

type testEnv struct {
	db          *gorm.DB
	store       *store.GormStore
	credentials CredentialService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Document{}, &models.Credential{}))

	credentials := NewCredentialService(repository.NewCredentialRepository(db), "test-secret", time.Hour, testLogger())
	credentials.(*credentialService).cost = bcrypt.MinCost

	return &testEnv{
		db:          db,
		store:       store.NewGormStore(repository.NewDocumentRepository(db), nil, "", nil, testLogger()),
		credentials: credentials,
	}
}

// register creates credentials and the users record for a principal.
func (e *testEnv) register(t *testing.T, email string, role models.Role) models.Principal {
	t.Helper()

	id, err := e.credentials.SignUp(context.Background(), email, testPassword)
	require.NoError(t, err)

	principal := models.Principal{ID: id, Email: email, Role: role}
	fields, err := store.Encode(principal)
	require.NoError(t, err)
	require.NoError(t, e.store.Set(context.Background(), store.Doc(store.CollectionUsers, id), fields))
	return principal
}

func (e *testEnv) createClass(t *testing.T, owner models.Principal, name string) string {
	t.Helper()

	fields, err := store.Encode(models.ClassGroup{Name: name, OwnerID: owner.ID})
	require.NoError(t, err)
	id, err := e.store.Insert(context.Background(), store.CollectionClasses, fields)
	require.NoError(t, err)
	return id
}

func (e *testEnv) enroll(t *testing.T, classID string, student models.Principal) {
	t.Helper()

	fields, err := store.Encode(models.Enrollment{Email: student.Email, AddedAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, e.store.Set(context.Background(), store.Doc(store.StudentsOf(classID), student.ID), fields))
}

func (e *testEnv) addHomework(t *testing.T, teacher models.Principal, title, description, classID string) string {
	t.Helper()

	fields, err := store.Encode(models.Homework{
		Title:       title,
		Description: description,
		AssignedBy:  teacher.ID,
		AssignedAt:  time.Now().UTC(),
		ClassID:     classID,
	})
	require.NoError(t, err)
	id, err := e.store.Insert(context.Background(), store.CollectionHomeworks, fields)
	require.NoError(t, err)
	return id
}

// insertRaw writes a document row bypassing JSON encoding.
func (e *testEnv) insertRaw(t *testing.T, collection, id, data string) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, e.db.Exec(
		"INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		collection, id, data, now, now,
	).Error)
}

func (e *testEnv) dashboard(t *testing.T, documents store.DocumentStore, cfg config.Config) *Dashboard {
	t.Helper()

	d := NewDashboard(uuid.NewString(), documents, e.credentials, cfg, testLogger())
	t.Cleanup(d.Close)
	return d
}

func signIn(t *testing.T, d *Dashboard, principal models.Principal) {
	t.Helper()

	_, err := d.SignIn(context.Background(), principal.Email, testPassword)
	require.NoError(t, err)
}

func waitForView(t *testing.T, d *Dashboard, condition func(view dto.DashboardView) bool) dto.DashboardView {
	t.Helper()

	var last dto.DashboardView
	require.Eventually(t, func() bool {
		last = d.Snapshot()
		return condition(last)
	}, 3*time.Second, 10*time.Millisecond, "view never reached expected state")
	return last
}

func itemTexts(list dto.ItemList) []string {
	texts := make([]string, 0, len(list.Items))
	for _, item := range list.Items {
		texts = append(texts, item.Text)
	}
	return texts
}

// gatedStore holds point reads of enrollment records for one student until
// released.
type gatedStore struct {
	store.DocumentStore

	studentID string
	entered   chan struct{}
	release   chan struct{}
	once      sync.Once
}

func newGatedStore(inner store.DocumentStore, studentID string) *gatedStore {
	return &gatedStore{
		DocumentStore: inner,
		studentID:     studentID,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (g *gatedStore) Get(ctx context.Context, path string) (store.Document, error) {
	if strings.HasSuffix(path, "/students/"+g.studentID) {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return store.Document{}, ctx.Err()
		}
	}
	return g.DocumentStore.Get(ctx, path)
}

// failingStore fails every point read of an enrollment record.
type failingStore struct {
	store.DocumentStore
	err error
}

func (f *failingStore) Get(ctx context.Context, path string) (store.Document, error) {
	if strings.Contains(path, "/students/") {
		return store.Document{}, f.err
	}
	return f.DocumentStore.Get(ctx, path)
}

package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Windi-Fikriyansyah/pasar_tani/internal/models"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/repository"
	"github.com/Windi-Fikriyansyah/pasar_tani/internal/utils"
)

const testSecret = "test-secret"

// MockRepo is a mock for both repository interfaces
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Received(ctx context.Context, userID uint, page repository.Page) ([]models.Message, int64, error) {
	args := m.Called(ctx, userID, page)
	return args.Get(0).([]models.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepo) Sent(ctx context.Context, userID uint, page repository.Page) ([]models.Message, int64, error) {
	args := m.Called(ctx, userID, page)
	return args.Get(0).([]models.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepo) Conversation(ctx context.Context, userID, peerID uint) ([]models.Message, error) {
	args := m.Called(ctx, userID, peerID)
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockRepo) Create(ctx context.Context, msg *models.Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) MarkRead(ctx context.Context, userID, messageID uint) (bool, error) {
	args := m.Called(ctx, userID, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepo) Delete(ctx context.Context, userID, messageID uint) error {
	return m.Called(ctx, userID, messageID).Error(0)
}

func (m *MockRepo) CountUnread(ctx context.Context, userID uint) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepo) FindUser(ctx context.Context, id uint) (models.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockRepo) FindProduct(ctx context.Context, id uint) (models.Product, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Product), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) NewMessage(ctx context.Context, msg models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func newTestApp(repo *MockRepo, pub *MockPublisher) *fiber.App {
	app := fiber.New()
	Mount(app, testSecret,
		&SessionHandler{Catalog: repo, JWTSecret: testSecret, Expires: 60},
		NewMessageHandler(repo, repo, pub, nil, nil),
		NewProductHandler(repo, nil),
	)
	return app
}

func token(t *testing.T, userID uint, role models.Role) string {
	t.Helper()
	tok, err := utils.SignJWT(testSecret, userID, string(role), 60)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, app *fiber.App, method, path, tok, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestMessages_RequireAuth(t *testing.T) {
	app := newTestApp(new(MockRepo), new(MockPublisher))

	status, _ := do(t, app, http.MethodGet, "/api/messages/received", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, app, http.MethodGet, "/api/messages/received", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMessages_AdminIsForbidden(t *testing.T) {
	app := newTestApp(new(MockRepo), new(MockPublisher))

	status, _ := do(t, app, http.MethodGet, "/api/messages/sent", token(t, 9, models.RoleAdmin), "")

	assert.Equal(t, http.StatusForbidden, status)
}

func TestGetReceived_FlatRecordsWithMeta(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Received", mock.Anything, uint(1), repository.Page{Page: 2, Limit: 10}).Return([]models.Message{{
		ID: 5, SenderID: 2, RecipientID: 1, Body: "Halo", CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Sender: &models.User{ID: 2, Name: "Budi"},
	}}, int64(11), nil)
	app := newTestApp(repo, new(MockPublisher))

	status, body := do(t, app, http.MethodGet, "/api/messages/received?page=2&limit=10", token(t, 1, models.RoleBuyer), "")

	require.Equal(t, http.StatusOK, status)
	data := body["data"].([]any)
	require.Len(t, data, 1)
	first := data[0].(map[string]any)
	assert.Equal(t, "Budi", first["sender_name"])
	assert.Equal(t, float64(2), first["sender_id"])
	assert.Equal(t, float64(11), body["meta"].(map[string]any)["total"])
	repo.AssertExpectations(t)
}

func TestGetConversation_NestedParticipants(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Conversation", mock.Anything, uint(1), uint(2)).Return([]models.Message{{
		ID: 5, SenderID: 2, RecipientID: 1, Body: "Halo",
		Sender:    &models.User{ID: 2, Name: "Budi", Email: "budi@pasartani.id"},
		Recipient: &models.User{ID: 1, Name: "Alice"},
	}}, nil)
	app := newTestApp(repo, new(MockPublisher))

	status, body := do(t, app, http.MethodGet, "/api/messages/conversation/2", token(t, 1, models.RoleBuyer), "")

	require.Equal(t, http.StatusOK, status)
	msg := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "budi@pasartani.id", msg["sender"].(map[string]any)["email"])
	assert.Equal(t, float64(1), msg["recipient"].(map[string]any)["id"])

	status, _ = do(t, app, http.MethodGet, "/api/messages/conversation/abc", token(t, 1, models.RoleBuyer), "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSendMessage_Validation(t *testing.T) {
	repo := new(MockRepo)
	app := newTestApp(repo, new(MockPublisher))
	tok := token(t, 1, models.RoleBuyer)

	for _, body := range []string{
		`{"recipient_id": 2, "body": "   "}`,
		`{"body": "hello"}`,
		`{"recipient_id": 1, "body": "hello"}`,
		`{"recipient_id": 2, "body": "hello", "client_ref": "not-a-uuid"}`,
	} {
		status, resp := do(t, app, http.MethodPost, "/api/messages", tok, body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, false, resp["success"])
	}
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendMessage_CreatesAndPublishes(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	ref := uuid.New()
	repo.On("FindUser", mock.Anything, uint(2)).Return(models.User{ID: 2, Name: "Budi"}, nil)
	repo.On("FindProduct", mock.Anything, uint(40)).Return(models.Product{ID: 40}, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(m *models.Message) bool {
		return m.SenderID == 1 && m.RecipientID == 2 && m.Body == "Masih ada?" && *m.ClientRef == ref
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Message).ID = 77
	}).Return(true, nil)
	pub.On("NewMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool { return m.ID == 77 })).Return(nil)
	app := newTestApp(repo, pub)

	status, body := do(t, app, http.MethodPost, "/api/messages", token(t, 1, models.RoleBuyer),
		`{"recipient_id": 2, "body": " Masih ada? ", "subject": "Cabai", "product_id": 40, "client_ref": "`+ref.String()+`"}`)

	require.Equal(t, http.StatusCreated, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(77), data["id"])
	assert.Equal(t, ref.String(), data["client_ref"])
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestSendMessage_DuplicateClientRefIsNotRepublished(t *testing.T) {
	repo := new(MockRepo)
	pub := new(MockPublisher)
	repo.On("FindUser", mock.Anything, uint(2)).Return(models.User{ID: 2}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Message).ID = 77
	}).Return(false, nil)
	app := newTestApp(repo, pub)

	status, body := do(t, app, http.MethodPost, "/api/messages", token(t, 1, models.RoleSeller),
		`{"recipient_id": 2, "body": "again", "client_ref": "`+uuid.NewString()+`"}`)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["created"])
	pub.AssertNotCalled(t, "NewMessage", mock.Anything, mock.Anything)
}

func TestSendMessage_UnknownRecipient(t *testing.T) {
	repo := new(MockRepo)
	repo.On("FindUser", mock.Anything, uint(5)).Return(models.User{}, repository.ErrNotFound)
	app := newTestApp(repo, new(MockPublisher))

	status, _ := do(t, app, http.MethodPost, "/api/messages", token(t, 1, models.RoleBuyer), `{"recipient_id": 5, "body": "hi"}`)

	assert.Equal(t, http.StatusNotFound, status)
}

func TestMarkAsRead(t *testing.T) {
	repo := new(MockRepo)
	repo.On("MarkRead", mock.Anything, uint(1), uint(5)).Return(true, nil)
	repo.On("MarkRead", mock.Anything, uint(1), uint(6)).Return(false, repository.ErrForbidden)
	repo.On("MarkRead", mock.Anything, uint(1), uint(7)).Return(false, repository.ErrNotFound)
	app := newTestApp(repo, new(MockPublisher))
	tok := token(t, 1, models.RoleBuyer)

	status, body := do(t, app, http.MethodPatch, "/api/messages/5/read", tok, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["changed"])

	status, _ = do(t, app, http.MethodPatch, "/api/messages/6/read", tok, "")
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = do(t, app, http.MethodPatch, "/api/messages/7/read", tok, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeleteMessage(t *testing.T) {
	repo := new(MockRepo)
	repo.On("Delete", mock.Anything, uint(1), uint(5)).Return(nil)
	repo.On("Delete", mock.Anything, uint(1), uint(6)).Return(repository.ErrNotFound)
	app := newTestApp(repo, new(MockPublisher))
	tok := token(t, 1, models.RoleSeller)

	status, _ := do(t, app, http.MethodDelete, "/api/messages/5", tok, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, app, http.MethodDelete, "/api/messages/6", tok, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGetUnreadTotal(t *testing.T) {
	repo := new(MockRepo)
	repo.On("CountUnread", mock.Anything, uint(1)).Return(int64(3), nil)
	app := newTestApp(repo, new(MockPublisher))

	status, body := do(t, app, http.MethodGet, "/api/messages/unread-count", token(t, 1, models.RoleBuyer), "")

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["data"])
}

func TestMe(t *testing.T) {
	repo := new(MockRepo)
	repo.On("FindUser", mock.Anything, uint(1)).Return(models.User{ID: 1, Name: "Alice", Email: "a@x.id", Role: models.RoleBuyer, IsActive: true}, nil)
	app := newTestApp(repo, new(MockPublisher))

	status, body := do(t, app, http.MethodGet, "/api/me", token(t, 1, models.RoleBuyer), "")

	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Alice", data["name"])
	assert.Equal(t, "buyer", data["role"])
}

func TestRefresh_SetsCookie(t *testing.T) {
	repo := new(MockRepo)
	repo.On("FindUser", mock.Anything, uint(1)).Return(models.User{ID: 1, Role: models.RoleSeller, IsActive: true}, nil)
	app := newTestApp(repo, new(MockPublisher))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 1, models.RoleSeller))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "pt_token" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	claims, err := utils.ParseJWT(testSecret, cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, uint(1), claims.UserID)
}

func TestProductDetail(t *testing.T) {
	repo := new(MockRepo)
	repo.On("FindProduct", mock.Anything, uint(40)).Return(models.Product{ID: 40, Title: "Cabai rawit", Unit: "kg", Price: 45000, Status: "published"}, nil)
	repo.On("FindProduct", mock.Anything, uint(41)).Return(models.Product{ID: 41, Status: "draft"}, nil)
	app := newTestApp(repo, new(MockPublisher))
	tok := token(t, 9, models.RoleAdmin)

	status, body := do(t, app, http.MethodGet, "/api/products/40", tok, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Cabai rawit", body["data"].(map[string]any)["title"])

	status, _ = do(t, app, http.MethodGet, "/api/products/41", tok, "")
	assert.Equal(t, http.StatusNotFound, status)
}

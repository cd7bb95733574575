package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxxcyber/loan-tracker/internal/config"
	"github.com/foxxcyber/loan-tracker/internal/database"
	"github.com/foxxcyber/loan-tracker/internal/models"
	"github.com/foxxcyber/loan-tracker/internal/services"
)

type memoryItemStore struct {
	mu         sync.Mutex
	registered map[string]bool
	inserted   []models.NewItem
	insertErr  error
}

func (m *memoryItemStore) LookupItem(ctx context.Context, ownerID int, externalID string) models.ItemLookup {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registered[externalID] {
		return models.ItemLookup{State: models.LookupFound, Item: &models.Item{ID: 1, ExternalID: externalID}}
	}
	return models.ItemLookup{State: models.LookupNotFound}
}

func (m *memoryItemStore) InsertItems(ctx context.Context, ownerID int, items []models.NewItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, items...)
	return len(items), nil
}

func newImportApp(store *memoryItemStore, maxRows int) *fiber.App {
	h := &Handler{
		cfg:      &config.Config{ImportMaxRows: maxRows},
		importer: services.NewImportService(store, 2, nil),
		notifier: services.NewNotifier(),
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", 9)
		return c.Next()
	})
	app.Get("/import/template", h.ImportTemplate)
	app.Post("/import/validate", h.ValidateImport)
	app.Post("/import/commit", h.CommitImport)
	return app
}

type reportEnvelope struct {
	Success bool                        `json:"success"`
	Error   string                      `json:"error"`
	Data    models.ImportCommitResponse `json:"data"`
}

func decode(t *testing.T, resp *http.Response) reportEnvelope {
	t.Helper()
	var env reportEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func jsonRows(t *testing.T, rows ...models.CandidateItem) io.Reader {
	t.Helper()
	body, err := json.Marshal(models.ImportRowsRequest{Rows: rows})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func row(id, name string) models.CandidateItem {
	return models.CandidateItem{ExternalID: id, Name: name, Genre: "Board games", Manager: "Sato"}
}

func TestImportTemplate(t *testing.T) {
	app := newImportApp(&memoryItemStore{}, 10)

	resp, err := app.Test(httptest.NewRequest("GET", "/import/template", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "item_id,name,genre,manager")
}

func TestValidateImportJSON(t *testing.T) {
	store := &memoryItemStore{registered: map[string]bool{"87654321": true}}
	app := newImportApp(store, 10)

	req := httptest.NewRequest("POST", "/import/validate",
		jsonRows(t, row("12345678", "Azul"), row("12345678", "Azul"), row("87654321", "Hanabi"), row("1", "")))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	env := decode(t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, 4, env.Data.TotalRows)
	assert.Equal(t, 1, env.Data.ValidCount)
	assert.Equal(t, 3, env.Data.InvalidCount)
	assert.Equal(t, []string{services.MsgDuplicateInFile}, env.Data.Rows[1].Errors)
	assert.Equal(t, []string{services.MsgAlreadyRegistered}, env.Data.Rows[2].Errors)
	assert.Equal(t, []string{services.MsgIDFormat, services.MsgNameRequired}, env.Data.Rows[3].Errors)
	assert.Equal(t, 4, env.Data.Rows[3].Row)
	assert.Empty(t, store.inserted)
}

func multipartCSV(t *testing.T, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "items.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestValidateImportCSVUpload(t *testing.T) {
	app := newImportApp(&memoryItemStore{}, 10)

	body, contentType := multipartCSV(t, "item_id,name,genre,manager\n12345678,Azul,Board games,Sato\n")
	req := httptest.NewRequest("POST", "/import/validate", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	env := decode(t, resp)
	assert.Equal(t, 1, env.Data.ValidCount)
	assert.Equal(t, 2, env.Data.Rows[0].Row)
}

func TestValidateImportRejectsBadInput(t *testing.T) {
	app := newImportApp(&memoryItemStore{}, 2)

	tests := []struct {
		name        string
		body        io.Reader
		contentType string
	}{
		{"no rows", jsonRows(t), fiber.MIMEApplicationJSON},
		{"too many rows", jsonRows(t, row("11111111", "a"), row("22222222", "b"), row("33333333", "c")), fiber.MIMEApplicationJSON},
		{"broken json", bytes.NewReader([]byte("{")), fiber.MIMEApplicationJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/import/validate", tt.body)
			req.Header.Set("Content-Type", tt.contentType)

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		})
	}

	body, contentType := multipartCSV(t, "item_id,name,genre,manager\n")
	req := httptest.NewRequest("POST", "/import/validate", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCommitImport(t *testing.T) {
	store := &memoryItemStore{}
	app := newImportApp(store, 10)

	req := httptest.NewRequest("POST", "/import/commit",
		jsonRows(t, row("12345678", "Azul"), row("bad", "Broken"), row("4006381333931", "Castles")))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	env := decode(t, resp)
	assert.Equal(t, 2, env.Data.Inserted)
	assert.Equal(t, 1, env.Data.InvalidCount)
	require.Len(t, store.inserted, 2)
}

func TestCommitImportErrors(t *testing.T) {
	tests := []struct {
		name   string
		store  *memoryItemStore
		rows   []models.CandidateItem
		status int
	}{
		{"nothing valid", &memoryItemStore{}, []models.CandidateItem{row("bad", "")}, fiber.StatusUnprocessableEntity},
		{
			"already registered",
			&memoryItemStore{insertErr: fmt.Errorf("%w (items_owner_external_id_active)", database.ErrDuplicateExternalID)},
			[]models.CandidateItem{row("12345678", "Azul")},
			fiber.StatusConflict,
		},
		{
			"permission",
			&memoryItemStore{insertErr: database.ErrPermissionDenied},
			[]models.CandidateItem{row("12345678", "Azul")},
			fiber.StatusForbidden,
		},
		{
			"other",
			&memoryItemStore{insertErr: fmt.Errorf("connection refused")},
			[]models.CandidateItem{row("12345678", "Azul")},
			fiber.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newImportApp(tt.store, 10)
			req := httptest.NewRequest("POST", "/import/commit", jsonRows(t, tt.rows...))
			req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			env := decode(t, resp)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

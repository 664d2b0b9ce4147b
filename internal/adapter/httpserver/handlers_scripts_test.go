package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/marketpulse/internal/domain"
	apperrors "github.com/pscheid92/marketpulse/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCode = "//@version=5\nindicator(\"RSI\")\nplot(ta.rsi(close, 14))"

func createScript(t *testing.T, srv *Server, name, category string) domain.PineScript {
	t.Helper()
	body := `{"name":"` + name + `","description":"desc","category":"` + category + `","code":"plot(close)"}`
	rec := serve(srv, http.MethodPost, "/api/pine-scripts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var script domain.PineScript
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &script))
	return script
}

func decodeScripts(t *testing.T, rec *httptest.ResponseRecorder) []domain.PineScript {
	t.Helper()
	var scripts []domain.PineScript
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scripts))
	return scripts
}

func TestHandleCreateScript(t *testing.T) {
	srv := newTestServer(t)

	script := createScript(t, srv, "RSI Divergence", "indicator")

	assert.NotEqual(t, uuid.Nil, script.ID)
	assert.Equal(t, domain.DefaultUserID, script.UserID)
	assert.Equal(t, "RSI Divergence", script.Name)
	assert.Equal(t, domain.ScriptCategoryIndicator, script.Category)
	assert.Equal(t, 0, script.Views)
}

func TestHandleCreateScript_Invalid(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"category":"strategy","code":"x"}`},
		{"missing code", `{"name":"a","category":"strategy"}`},
		{"unknown category", `{"name":"a","category":"oscillator","code":"x"}`},
		{"malformed json", `{"name":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, http.MethodPost, "/api/pine-scripts", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, apperrors.TypeValidation, decodeError(t, rec).Type)
		})
	}
}

func TestHandleListScripts(t *testing.T) {
	srv := newTestServer(t)
	createScript(t, srv, "Alpha", "strategy")
	createScript(t, srv, "Beta", "indicator")

	rec := serve(srv, http.MethodGet, "/api/pine-scripts", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeScripts(t, rec), 2)

	rec = serve(srv, http.MethodGet, "/api/pine-scripts?userId=someone-else", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeScripts(t, rec))
}

func TestHandleListScripts_Search(t *testing.T) {
	srv := newTestServer(t)
	createScript(t, srv, "Golden Cross", "strategy")
	createScript(t, srv, "Golden Ratio", "indicator")
	createScript(t, srv, "VWAP", "indicator")

	rec := serve(srv, http.MethodGet, "/api/pine-scripts?search=golden", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeScripts(t, rec), 2)

	rec = serve(srv, http.MethodGet, "/api/pine-scripts?search=golden&category=indicator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	scripts := decodeScripts(t, rec)
	require.Len(t, scripts, 1)
	assert.Equal(t, "Golden Ratio", scripts[0].Name)

	rec = serve(srv, http.MethodGet, "/api/pine-scripts?category=indicator", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeScripts(t, rec), 2)
}

func TestHandleListScripts_UnknownCategory(t *testing.T) {
	srv := newTestServer(t)

	rec := serve(srv, http.MethodGet, "/api/pine-scripts?category=bogus", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListScripts_StoreFailure(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/pine-scripts", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	srv := newTestServer(t, withScripts(&mockScriptStore{
		listFn: func(context.Context, string) ([]domain.PineScript, error) {
			return nil, errors.New("disk on fire")
		},
	}))

	require.NoError(t, callHandler(srv.handleListScripts, c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
	assert.NotContains(t, resp.Error, "disk on fire")
}

func TestHandleCreateScript_StoreFailure(t *testing.T) {
	srv := newTestServer(t, withScripts(&mockScriptStore{
		createFn: func(context.Context, domain.NewPineScript) (*domain.PineScript, error) {
			return nil, errors.New("write failed")
		},
	}))

	rec := serve(srv, http.MethodPost, "/api/pine-scripts", `{"name":"a","category":"strategy","code":"x"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleUpdateScript(t *testing.T) {
	srv := newTestServer(t)
	script := createScript(t, srv, "Alpha", "strategy")

	rec := serve(srv, http.MethodPut, "/api/pine-scripts/"+script.ID.String(), `{"name":"Alpha v2","category":"study"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.PineScript
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, script.ID, updated.ID)
	assert.Equal(t, "Alpha v2", updated.Name)
	assert.Equal(t, domain.ScriptCategoryStudy, updated.Category)
	assert.Equal(t, "plot(close)", updated.Code)
}

func TestHandleUpdateScript_Errors(t *testing.T) {
	srv := newTestServer(t)
	script := createScript(t, srv, "Alpha", "strategy")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"bad id", "/api/pine-scripts/not-a-uuid", `{"name":"x"}`, http.StatusBadRequest},
		{"unknown id", "/api/pine-scripts/" + uuid.NewString(), `{"name":"x"}`, http.StatusNotFound},
		{"empty name", "/api/pine-scripts/" + script.ID.String(), `{"name":" "}`, http.StatusBadRequest},
		{"bad category", "/api/pine-scripts/" + script.ID.String(), `{"category":"nope"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(srv, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandleDeleteScript(t *testing.T) {
	srv := newTestServer(t)
	script := createScript(t, srv, "Alpha", "strategy")

	rec := serve(srv, http.MethodDelete, "/api/pine-scripts/"+script.ID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(srv, http.MethodDelete, "/api/pine-scripts/"+script.ID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(srv, http.MethodGet, "/api/pine-scripts", "")
	assert.Empty(t, decodeScripts(t, rec))
}

func TestHandleViewScript(t *testing.T) {
	srv := newTestServer(t)
	script := createScript(t, srv, "Alpha", "strategy")

	for range 2 {
		rec := serve(srv, http.MethodPost, "/api/pine-scripts/"+script.ID.String()+"/view", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	}

	rec := serve(srv, http.MethodGet, "/api/pine-scripts", "")
	scripts := decodeScripts(t, rec)
	require.Len(t, scripts, 1)
	assert.Equal(t, 2, scripts[0].Views)
}

func TestHandleViewScript_UnknownID(t *testing.T) {
	srv := newTestServer(t)

	rec := serve(srv, http.MethodPost, "/api/pine-scripts/"+uuid.NewString()+"/view", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartUpload(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(bulkUploadField, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleBulkUpload(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, map[string]string{"rsi.pine": sampleCode})

	req := httptest.NewRequest(http.MethodPost, "/api/pine-scripts/bulk-upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	scripts := decodeScripts(t, rec)
	require.Len(t, scripts, 1)
	assert.Equal(t, "rsi", scripts[0].Name)
	require.NotNil(t, scripts[0].Description)
	assert.Equal(t, "Uploaded script: rsi", *scripts[0].Description)
	assert.Equal(t, domain.ScriptCategoryStrategy, scripts[0].Category)
	assert.Equal(t, sampleCode, scripts[0].Code)
}

func TestHandleBulkUpload_MultipleFiles(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, map[string]string{
		"a.pine": "plot(open)",
		"b.txt":  "plot(close)",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/pine-scripts/bulk-upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	names := []string{}
	for _, s := range decodeScripts(t, rec) {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"a", "b.txt"}, names)
}

func TestHandleBulkUpload_NoFiles(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/pine-scripts/bulk-upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.TypeValidation, decodeError(t, rec).Type)
}

func TestHandleBulkUpload_NotMultipart(t *testing.T) {
	srv := newTestServer(t)

	rec := serve(srv, http.MethodPost, "/api/pine-scripts/bulk-upload", `{"scripts":[]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBulkUpload_EmptyFileRejected(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, map[string]string{"empty.pine": ""})

	req := httptest.NewRequest(http.MethodPost, "/api/pine-scripts/bulk-upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBulkUpload_InvalidFileStoresNothing(t *testing.T) {
	srv := newTestServer(t)
	body, contentType := multipartUpload(t, map[string]string{
		"good.pine":  sampleCode,
		"empty.pine": "",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/pine-scripts/bulk-upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.TypeValidation, decodeError(t, rec).Type)

	list := serve(srv, http.MethodGet, "/api/pine-scripts", "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decodeScripts(t, list))
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tarefas/internal/auth"
	"tarefas/internal/auth/authtest"
	"tarefas/internal/models"
	"tarefas/internal/storage/memory"
)

type harness struct {
	t        *testing.T
	provider *authtest.Provider
	store    *memory.Store
	srv      *Server
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := authtest.NewProvider(t)
	keys := auth.NewJWKSKeySource(p.JWKSURL(), auth.WithKeySourceLogger(logger))
	authn := auth.NewAuthenticator(auth.NewVerifier(keys, authtest.Audience), auth.DefaultPolicy(), logger)
	store := memory.New()
	return &harness{t: t, provider: p, store: store, srv: New(store, authn, logger, opts...)}
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["erro"]
}

func (h *harness) createAs(token, title string) models.Task {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/tarefas", token, map[string]string{"titulo": title})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Task](h.t, rec)
}

func TestHealthIsPublic(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRoutesRequireBearerToken(t *testing.T) {
	h := newHarness(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/tarefas"},
		{http.MethodGet, "/tarefas/any"},
		{http.MethodPost, "/tarefas"},
		{http.MethodPut, "/tarefas/any"},
		{http.MethodDelete, "/tarefas/any"},
	}
	for _, rt := range routes {
		rec := h.do(rt.method, rt.path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", rt.method, rt.path)
		require.Equal(t, "Token de acesso não fornecido!", errorMessage(t, rec))
		require.Equal(t, `Bearer realm="tarefas"`, rec.Header().Get("WWW-Authenticate"))
	}
}

func TestBadTokenChallengeCarriesErrorCode(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/tarefas", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	challenge := rec.Header().Get("WWW-Authenticate")
	require.Contains(t, challenge, `Bearer realm="tarefas"`)
	require.Contains(t, challenge, `error="invalid_token"`)
	require.Contains(t, challenge, `error_description="invalid_token"`)
}

func TestWrongSchemeIsMissingToken(t *testing.T) {
	h := newHarness(t)
	tok := h.provider.Token(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/tarefas", nil)
	req.Header.Set("Authorization", "Token "+tok)
	rec := httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Token de acesso não fornecido!", errorMessage(t, rec))
}

func TestExpiredAndInvalidTokens(t *testing.T) {
	h := newHarness(t)

	claims := h.provider.Claims("alice")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	rec := h.do(http.MethodGet, "/tarefas", h.provider.Sign(t, claims), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Token expirado!", errorMessage(t, rec))

	claims = h.provider.Claims("alice")
	claims["aud"] = "outro-cliente"
	rec = h.do(http.MethodGet, "/tarefas", h.provider.Sign(t, claims), nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Token inválido!", errorMessage(t, rec))
}

func TestKeyFetchFailureIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	tok := h.provider.Token(t, "alice")
	h.provider.Fail(http.StatusBadGateway)

	rec := h.do(http.MethodGet, "/tarefas", tok, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, errorMessage(t, rec))

	h.provider.Reset()
	rec = h.do(http.MethodGet, "/tarefas", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateTaskAsAlice(t *testing.T) {
	h := newHarness(t)
	task := h.createAs(h.provider.Token(t, "alice"), "Buy milk")

	require.NotEmpty(t, task.ID)
	require.Equal(t, "Buy milk", task.Title)
	require.Equal(t, "alice", task.Owner)
	require.Equal(t, "pendente", task.Status)
	require.Equal(t, "", task.Description)
}

func TestCreateIgnoresOwnerAndStatusInBody(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/tarefas", h.provider.Token(t, "alice"), map[string]string{
		"titulo":     "Buy milk",
		"descricao":  "oat",
		"status":     "concluida",
		"criado_por": "mallory",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[models.Task](t, rec)
	require.Equal(t, "alice", task.Owner)
	require.Equal(t, "pendente", task.Status)
	require.Equal(t, "oat", task.Description)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	tok := h.provider.Token(t, "alice")

	rec := h.do(http.MethodPost, "/tarefas", tok, map[string]string{"descricao": "no title"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Título é obrigatório", errorMessage(t, rec))

	rec = h.do(http.MethodPost, "/tarefas", tok, map[string]string{"titulo": "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/tarefas", tok, "{not json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTask(t *testing.T) {
	h := newHarness(t)
	alice := h.provider.Token(t, "alice")
	task := h.createAs(alice, "Buy milk")

	rec := h.do(http.MethodGet, "/tarefas/"+task.ID, h.provider.Token(t, "bob"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, task.ID, decode[models.Task](t, rec).ID)
}

func TestGetUnknownTaskIsNotFoundForAnyone(t *testing.T) {
	h := newHarness(t)
	for _, tok := range []string{
		h.provider.Token(t, "alice"),
		h.provider.Token(t, "bob"),
		h.provider.Token(t, "root", "admin"),
	} {
		rec := h.do(http.MethodGet, "/tarefas/nao-existe", tok, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "Tarefa não encontrada", errorMessage(t, rec))
	}
}

func TestListTasks(t *testing.T) {
	h := newHarness(t)
	alice := h.provider.Token(t, "alice")

	rec := h.do(http.MethodGet, "/tarefas", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	first := h.createAs(alice, "first")
	second := h.createAs(h.provider.Token(t, "bob"), "second")
	rec = h.do(http.MethodPut, "/tarefas/"+second.ID, h.provider.Token(t, "bob"), map[string]string{"status": "concluida"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/tarefas", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]models.Task](t, rec), 2)

	rec = h.do(http.MethodGet, "/tarefas?status=pendente", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]models.Task](t, rec)
	require.Len(t, pending, 1)
	require.Equal(t, first.ID, pending[0].ID)
}

func TestUpdateByStrangerIsForbidden(t *testing.T) {
	h := newHarness(t)
	task := h.createAs(h.provider.Token(t, "alice"), "Buy milk")

	rec := h.do(http.MethodPut, "/tarefas/"+task.ID, h.provider.Token(t, "bob", "user"), map[string]string{"titulo": "hijacked"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Você não tem permissão para editar esta tarefa", errorMessage(t, rec))

	stored, err := h.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, "Buy milk", stored.Title)
}

func TestUpdateByAdminKeepsOwner(t *testing.T) {
	h := newHarness(t)
	task := h.createAs(h.provider.Token(t, "alice"), "Buy milk")

	rec := h.do(http.MethodPut, "/tarefas/"+task.ID, h.provider.Token(t, "root", "admin"), map[string]string{
		"titulo":     "Buy oat milk",
		"descricao":  "2 litres",
		"status":     "concluida",
		"criado_por": "root",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Task](t, rec)
	require.Equal(t, "Buy oat milk", updated.Title)
	require.Equal(t, "2 litres", updated.Description)
	require.Equal(t, "concluida", updated.Status)
	require.Equal(t, "alice", updated.Owner)
}

func TestUpdateByOwnerPartial(t *testing.T) {
	h := newHarness(t)
	alice := h.provider.Token(t, "alice")
	task := h.createAs(alice, "Buy milk")

	rec := h.do(http.MethodPut, "/tarefas/"+task.ID, alice, map[string]string{"descricao": "semi-skimmed"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.Task](t, rec)
	require.Equal(t, "Buy milk", updated.Title)
	require.Equal(t, "semi-skimmed", updated.Description)
	require.Equal(t, "pendente", updated.Status)
}

func TestUpdateValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.provider.Token(t, "alice")
	task := h.createAs(alice, "Buy milk")

	rec := h.do(http.MethodPut, "/tarefas/"+task.ID, alice, map[string]string{"titulo": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPut, "/tarefas/"+task.ID, alice, map[string]string{"status": " "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPut, "/tarefas/"+task.ID, alice, "[1,2")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundBeforeForbidden(t *testing.T) {
	h := newHarness(t)
	bob := h.provider.Token(t, "bob")

	rec := h.do(http.MethodPut, "/tarefas/nao-existe", bob, map[string]string{"titulo": "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodDelete, "/tarefas/nao-existe", bob, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	h := newHarness(t)
	alice := h.provider.Token(t, "alice")
	task := h.createAs(alice, "Buy milk")

	rec := h.do(http.MethodDelete, "/tarefas/"+task.ID, h.provider.Token(t, "bob"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Você não tem permissão para deletar esta tarefa", errorMessage(t, rec))

	rec = h.do(http.MethodDelete, "/tarefas/"+task.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Tarefa deletada com sucesso", decode[map[string]string](t, rec)["mensagem"])

	rec = h.do(http.MethodGet, "/tarefas/"+task.ID, alice, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminCanDeleteAnyTask(t *testing.T) {
	h := newHarness(t)
	task := h.createAs(h.provider.Token(t, "alice"), "Buy milk")

	rec := h.do(http.MethodDelete, "/tarefas/"+task.ID, h.provider.Token(t, "root", "admin"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t, WithAllowedOrigins("http://localhost:5173"))

	req := httptest.NewRequest(http.MethodOptions, "/tarefas", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/tarefas", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	rec = httptest.NewRecorder()
	h.srv.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteIsJSON(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/nada", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "endpoint não encontrado", errorMessage(t, rec))
}

func TestStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>tarefas</html>"), 0o644))
	h := newHarness(t, WithStaticDir(dir))

	rec := h.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tarefas")

	rec = h.do(http.MethodGet, "/some/client/route", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tarefas")

	rec = h.do(http.MethodGet, "/tarefas/a/b", h.provider.Token(t, "alice"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "endpoint não encontrado", errorMessage(t, rec))
}

func TestStaticFallbackOnlyForGET(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>tarefas</html>"), 0o644))
	h := newHarness(t, WithStaticDir(dir))

	rec := h.do(http.MethodPost, "/some/client/route", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "endpoint não encontrado", errorMessage(t, rec))
}

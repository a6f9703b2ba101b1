package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tasknest/tasknest/internal/auth"
	"github.com/tasknest/tasknest/internal/handler/dto"
	"github.com/tasknest/tasknest/internal/model"
	"github.com/tasknest/tasknest/internal/service"
	"github.com/tasknest/tasknest/internal/testutil/memstore"
)

// asUser stands in for middleware.Auth: it trusts X-Test-User.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-Test-User"); id != "" {
			r = r.WithContext(auth.ContextWithIdentity(r.Context(), &model.Identity{UserID: id}))
		}
		next.ServeHTTP(w, r)
	})
}

func newTaskRouter(t *testing.T) (http.Handler, *memstore.Tasks) {
	t.Helper()
	store := memstore.NewTasks()
	h := NewTaskHandler(service.NewTaskService(store, nil, nil), discardLogger())

	r := chi.NewRouter()
	r.Use(asUser)
	r.Post("/api/todos", h.Create)
	r.Get("/api/todos", h.List)
	r.Get("/api/todos/{id}", h.Get)
	r.Put("/api/todos/{id}", h.Update)
	r.Delete("/api/todos/{id}", h.Delete)
	return r, store
}

func doJSON(t *testing.T, h http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestTaskHandler_CRUD(t *testing.T) {
	t.Parallel()
	router, _ := newTaskRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/todos", "alice", dto.TaskRequest{Title: "Buy milk", Description: "2%"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[dto.TaskResponse](t, rec)
	if created.ID == "" || created.UserID != "alice" || created.Title != "Buy milk" {
		t.Fatalf("unexpected created task: %+v", created)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/todos/"+created.ID, "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decodeBody[dto.TaskResponse](t, rec); got.Description != "2%" {
		t.Errorf("get description = %q", got.Description)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/todos/"+created.ID, "alice", dto.TaskRequest{Title: "Buy oat milk", Description: "1L"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	updated := decodeBody[dto.TaskResponse](t, rec)
	if updated.Title != "Buy oat milk" || !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("unexpected updated task: %+v", updated)
	}

	rec = doJSON(t, router, http.MethodDelete, "/api/todos/"+created.ID, "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if deleted := decodeBody[dto.TaskResponse](t, rec); deleted.Title != "Buy oat milk" {
		t.Errorf("delete should return prior state, got %+v", deleted)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/todos/"+created.ID, "alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestTaskHandler_TextRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{"angle brackets", "a<b and c>d"},
		{"generic type", "Use Vec<T> here"},
		{"tag-like words", "Fix <div> layout"},
		{"script tag", "<script>alert(1)</script>"},
		{"ampersand and entity", "Milk & eggs, not &amp;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router, _ := newTaskRouter(t)

			rec := doJSON(t, router, http.MethodPost, "/api/todos", "alice", dto.TaskRequest{Title: tt.text, Description: tt.text})
			if rec.Code != http.StatusCreated {
				t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
			}
			created := decodeBody[dto.TaskResponse](t, rec)

			rec = doJSON(t, router, http.MethodGet, "/api/todos/"+created.ID, "alice", nil)
			got := decodeBody[dto.TaskResponse](t, rec)
			if got.Title != tt.text || got.Description != tt.text {
				t.Errorf("after create got %q / %q, want %q", got.Title, got.Description, tt.text)
			}

			rec = doJSON(t, router, http.MethodPut, "/api/todos/"+created.ID, "alice", dto.TaskRequest{Title: tt.text + "!", Description: tt.text + "!"})
			if rec.Code != http.StatusOK {
				t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
			}

			rec = doJSON(t, router, http.MethodGet, "/api/todos", "alice", nil)
			list := decodeBody[[]dto.TaskResponse](t, rec)
			if len(list) != 1 || list[0].Title != tt.text+"!" || list[0].Description != tt.text+"!" {
				t.Errorf("after update got %+v, want %q", list, tt.text+"!")
			}
		})
	}
}

func TestTaskHandler_OwnerIsolation(t *testing.T) {
	t.Parallel()
	router, _ := newTaskRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/todos", "alice", dto.TaskRequest{Title: "Buy milk", Description: "2%"})
	created := decodeBody[dto.TaskResponse](t, rec)

	rec = doJSON(t, router, http.MethodGet, "/api/todos", "bob", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Fatalf("bob list = %d %q, want 200 []", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/todos", "alice", nil)
	list := decodeBody[[]dto.TaskResponse](t, rec)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("alice list = %+v", list)
	}

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		var body any
		if method == http.MethodPut {
			body = dto.TaskRequest{Title: "hijack", Description: "x"}
		}
		rec := doJSON(t, router, method, "/api/todos/"+created.ID, "bob", body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s as bob status = %d, want 404", method, rec.Code)
		}
		if code := decodeBody[dto.ErrorResponse](t, rec).Code; code != "TASK_NOT_FOUND" {
			t.Errorf("%s as bob code = %q", method, code)
		}
	}
}

func TestTaskHandler_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"blank title", http.MethodPost, "/api/todos", dto.TaskRequest{Title: "  ", Description: "d"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing description", http.MethodPost, "/api/todos", map[string]string{"title": "t"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed id", http.MethodGet, "/api/todos/not-an-id", nil, http.StatusNotFound, "TASK_NOT_FOUND"},
		{"unknown id", http.MethodDelete, "/api/todos/65f0c0ffee0000000000beef", nil, http.StatusNotFound, "TASK_NOT_FOUND"},
		{"update invalid body", http.MethodPut, "/api/todos/65f0c0ffee0000000000beef", dto.TaskRequest{Title: "", Description: ""}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router, store := newTaskRouter(t)

			rec := doJSON(t, router, tt.method, tt.path, "alice", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if code := decodeBody[dto.ErrorResponse](t, rec).Code; code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if store.Len() != 0 {
				t.Error("nothing should be persisted")
			}
		})
	}
}

func TestTaskHandler_InvalidJSON(t *testing.T) {
	t.Parallel()
	router, store := newTaskRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/todos", bytes.NewBufferString(`{"title":`))
	req.Header.Set("X-Test-User", "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeBody[dto.ErrorResponse](t, rec).Code; code != "INVALID_JSON" {
		t.Errorf("code = %q", code)
	}
	if store.Mutations() != 0 {
		t.Error("store should not be touched")
	}
}

func TestTaskHandler_StorageFailure(t *testing.T) {
	t.Parallel()
	router, store := newTaskRouter(t)
	store.FailWith(errors.New("connection reset"))

	rec := doJSON(t, router, http.MethodGet, "/api/todos", "alice", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody[dto.ErrorResponse](t, rec)
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q", body.Code)
	}
	if bytes.Contains([]byte(body.Error), []byte("connection reset")) {
		t.Error("storage details must not leak to clients")
	}
}

func TestTaskHandler_NoIdentity(t *testing.T) {
	t.Parallel()
	router, store := newTaskRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/todos", "", dto.TaskRequest{Title: "t", Description: "d"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if store.Mutations() != 0 {
		t.Error("store should not be touched")
	}
}

func doJSONWithToken(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTaskHandler_CreateForDeletedUser(t *testing.T) {
	t.Parallel()
	store := memstore.NewTasks()
	h := NewTaskHandler(service.NewTaskService(store, memstore.NewUsers(), nil), discardLogger())
	r := chi.NewRouter()
	r.Use(asUser)
	r.Post("/api/todos", h.Create)

	rec := doJSON(t, r, http.MethodPost, "/api/todos", "gone", dto.TaskRequest{Title: "t", Description: "d"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (body %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody[dto.ErrorResponse](t, rec); body.Code != "UNKNOWN_USER" {
		t.Errorf("code = %q, want UNKNOWN_USER", body.Code)
	}
	if store.Len() != 0 {
		t.Errorf("expected no stored task, got %d", store.Len())
	}
}

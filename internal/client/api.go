// Package client is the API client and terminal board for tasknest.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tasknest/tasknest/internal/handler/dto"
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 4 << 20

// ErrNotLoggedIn is returned before any request that needs a token when
// the session holds none.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// endsSession reports whether the server rejected the token itself.
func (e *APIError) endsSession() bool {
	return e.Status == http.StatusUnauthorized && (e.Code == "INVALID_TOKEN" || e.Code == "UNKNOWN_USER")
}

// API is a typed client for the REST API. Authenticated calls take the
// bearer token from the shared Session.
type API struct {
	baseURL string
	http    *http.Client
	session *Session
}

// NewAPI creates an API client rooted at baseURL.
func NewAPI(baseURL string, httpClient *http.Client, session *Session) *API {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		session: session,
	}
}

// Register creates an account and signs in.
func (a *API) Register(ctx context.Context, name, email, password string) (*dto.UserResponse, error) {
	var resp dto.AuthResponse
	req := dto.RegisterRequest{Name: name, Email: email, Password: password}
	if err := a.do(ctx, http.MethodPost, "/api/auth/register", false, req, &resp); err != nil {
		return nil, err
	}
	if err := a.session.Set(&resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Login signs in with email and password.
func (a *API) Login(ctx context.Context, email, password string) (*dto.UserResponse, error) {
	var resp dto.AuthResponse
	req := dto.LoginRequest{Email: email, Password: password}
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", false, req, &resp); err != nil {
		return nil, err
	}
	if err := a.session.Set(&resp); err != nil {
		return nil, err
	}
	return resp.User, nil
}

// Me asks the server who the session belongs to.
func (a *API) Me(ctx context.Context) (*dto.UserResponse, error) {
	var user dto.UserResponse
	if err := a.do(ctx, http.MethodGet, "/api/auth/me", true, nil, &user); err != nil {
		return nil, err
	}
	if err := a.session.SetUser(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes the token server-side and clears the session.
func (a *API) Logout(ctx context.Context) error {
	err := a.do(ctx, http.MethodPost, "/api/auth/logout", true, nil, nil)
	if err != nil && !errors.Is(err, ErrNotLoggedIn) {
		return err
	}
	return a.session.Clear()
}

// DeleteAccount removes the signed-in account. The server refuses while
// the account still owns tasks.
func (a *API) DeleteAccount(ctx context.Context) (*dto.UserResponse, error) {
	var user dto.UserResponse
	if err := a.do(ctx, http.MethodDelete, "/api/auth/me", true, nil, &user); err != nil {
		return nil, err
	}
	if err := a.session.Clear(); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListTasks returns the caller's tasks, most recently updated first.
func (a *API) ListTasks(ctx context.Context) ([]dto.TaskResponse, error) {
	var tasks []dto.TaskResponse
	if err := a.do(ctx, http.MethodGet, "/api/todos", true, nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []dto.TaskResponse{}
	}
	return tasks, nil
}

// CreateTask stores a new task.
func (a *API) CreateTask(ctx context.Context, title, description string) (*dto.TaskResponse, error) {
	var task dto.TaskResponse
	req := dto.TaskRequest{Title: title, Description: description}
	if err := a.do(ctx, http.MethodPost, "/api/todos", true, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask replaces a task's title and description.
func (a *API) UpdateTask(ctx context.Context, id, title, description string) (*dto.TaskResponse, error) {
	var task dto.TaskResponse
	req := dto.TaskRequest{Title: title, Description: description}
	if err := a.do(ctx, http.MethodPut, "/api/todos/"+url.PathEscape(id), true, req, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask removes a task and returns its last state.
func (a *API) DeleteTask(ctx context.Context, id string) (*dto.TaskResponse, error) {
	var task dto.TaskResponse
	if err := a.do(ctx, http.MethodDelete, "/api/todos/"+url.PathEscape(id), true, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (a *API) do(ctx context.Context, method, path string, authenticated bool, body, out any) error {
	var token string
	if authenticated {
		token = a.session.Token()
		if token == "" {
			return ErrNotLoggedIn
		}
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseSize)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e dto.ErrorResponse
		if err := json.NewDecoder(limited).Decode(&e); err == nil && e.Error != "" {
			apiErr.Code = e.Code
			apiErr.Message = e.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if apiErr.endsSession() {
			if err := a.session.Clear(); err != nil {
				return errors.Join(apiErr, err)
			}
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

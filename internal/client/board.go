package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tasknest/tasknest/internal/handler/dto"
)

// Notification texts shown to the user.
const (
	MsgRequired     = "Title and description are required"
	MsgAdded        = "Todo added successfully"
	MsgUpdated      = "Todo updated successfully"
	MsgDeleted      = "Todo deleted successfully"
	MsgSaveFailed   = "Error saving todo"
	MsgDeleteFailed = "Error deleting todo"
	MsgFetchFailed  = "Error fetching todos"
	MsgLoginNeeded  = "Please log in"
)

// ErrBlankFields is returned by Submit when the form is incomplete.
var ErrBlankFields = errors.New("title and description are required")

// ErrUnknownTask is returned by Edit for an id not in the local list.
var ErrUnknownTask = errors.New("task not in list")

// Notifier shows transient messages to the user.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// TaskAPI is the subset of API the board needs.
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]dto.TaskResponse, error)
	CreateTask(ctx context.Context, title, description string) (*dto.TaskResponse, error)
	UpdateTask(ctx context.Context, id, title, description string) (*dto.TaskResponse, error)
	DeleteTask(ctx context.Context, id string) (*dto.TaskResponse, error)
}

// DateRange restricts the visible list to tasks updated recently.
type DateRange int

// Supported ranges. The value is the window in days; RangeAll has none.
const (
	RangeAll        DateRange = 0
	RangeLast3Days  DateRange = 3
	RangeLast7Days  DateRange = 7
	RangeLast30Days DateRange = 30
)

// ParseDateRange accepts "all", "3", "7" or "30".
func ParseDateRange(s string) (DateRange, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return RangeAll, nil
	case "3":
		return RangeLast3Days, nil
	case "7":
		return RangeLast7Days, nil
	case "30":
		return RangeLast30Days, nil
	}
	return RangeAll, fmt.Errorf("unknown date range %q (want all, 3, 7 or 30)", s)
}

func (r DateRange) String() string {
	if r == RangeAll {
		return "All"
	}
	return fmt.Sprintf("Last %d Days", int(r))
}

// Board holds the task form, the fetched list and the local filters.
// Search and date range never hit the server. A Board is not safe for
// concurrent use.
type Board struct {
	api     TaskAPI
	session *Session
	notify  Notifier
	now     func() time.Time

	tasks []dto.TaskResponse

	title       string
	description string
	editID      string

	query     string
	dateRange DateRange
}

// NewBoard creates a Board over api for the user in session.
func NewBoard(api TaskAPI, session *Session, notify Notifier) *Board {
	return &Board{
		api:     api,
		session: session,
		notify:  notify,
		now:     time.Now,
		tasks:   []dto.TaskResponse{},
	}
}

// Refresh replaces the list with the server's. On failure the list is
// emptied rather than left stale.
func (b *Board) Refresh(ctx context.Context) error {
	if !b.session.Authenticated() {
		b.tasks = []dto.TaskResponse{}
		b.notify.Error(MsgLoginNeeded)
		return ErrNotLoggedIn
	}

	tasks, err := b.api.ListTasks(ctx)
	if err != nil {
		b.tasks = []dto.TaskResponse{}
		b.notify.Error(failureMessage(err, MsgFetchFailed))
		return err
	}
	b.tasks = tasks
	return nil
}

// SetForm fills the title and description inputs.
func (b *Board) SetForm(title, description string) {
	b.title = title
	b.description = description
}

// Form returns the current inputs and the id being edited, if any.
func (b *Board) Form() (title, description, editID string) {
	return b.title, b.description, b.editID
}

// Editing reports whether Submit will update rather than create.
func (b *Board) Editing() bool {
	return b.editID != ""
}

// Edit loads task id into the form.
func (b *Board) Edit(id string) error {
	i := b.indexOf(id)
	if i < 0 {
		return ErrUnknownTask
	}
	b.editID = id
	b.title = b.tasks[i].Title
	b.description = b.tasks[i].Description
	return nil
}

// ResetForm clears the inputs and leaves edit mode.
func (b *Board) ResetForm() {
	b.title, b.description, b.editID = "", "", ""
}

// Submit creates a task, or updates the one being edited. Blank fields
// are rejected before any request. The form is reset only on success.
func (b *Board) Submit(ctx context.Context) (*dto.TaskResponse, error) {
	if strings.TrimSpace(b.title) == "" || strings.TrimSpace(b.description) == "" {
		b.notify.Error(MsgRequired)
		return nil, ErrBlankFields
	}

	if b.editID != "" {
		task, err := b.api.UpdateTask(ctx, b.editID, b.title, b.description)
		if err != nil {
			b.notify.Error(failureMessage(err, MsgSaveFailed))
			return nil, err
		}
		if i := b.indexOf(task.ID); i >= 0 {
			b.tasks[i] = *task
		}
		b.ResetForm()
		b.notify.Success(MsgUpdated)
		return task, nil
	}

	task, err := b.api.CreateTask(ctx, b.title, b.description)
	if err != nil {
		b.notify.Error(failureMessage(err, MsgSaveFailed))
		return nil, err
	}
	// Newest first, matching the server's order.
	b.tasks = append([]dto.TaskResponse{*task}, b.tasks...)
	b.ResetForm()
	b.notify.Success(MsgAdded)
	return task, nil
}

// Delete removes task id on the server, then locally.
func (b *Board) Delete(ctx context.Context, id string) (*dto.TaskResponse, error) {
	task, err := b.api.DeleteTask(ctx, id)
	if err != nil {
		b.notify.Error(failureMessage(err, MsgDeleteFailed))
		return nil, err
	}
	b.tasks = slices.DeleteFunc(b.tasks, func(t dto.TaskResponse) bool { return t.ID == id })
	if b.editID == id {
		b.ResetForm()
	}
	b.notify.Success(MsgDeleted)
	return task, nil
}

// SetSearch sets the case-insensitive text filter.
func (b *Board) SetSearch(query string) {
	b.query = query
}

// SetDateRange sets the updatedAt window filter.
func (b *Board) SetDateRange(r DateRange) {
	b.dateRange = r
}

// Tasks returns the full fetched list.
func (b *Board) Tasks() []dto.TaskResponse {
	return slices.Clone(b.tasks)
}

// Visible returns the tasks matching the search text in title or
// description and updated within the date range.
func (b *Board) Visible() []dto.TaskResponse {
	query := strings.ToLower(b.query)
	now := b.now()
	window := time.Duration(b.dateRange) * 24 * time.Hour

	out := make([]dto.TaskResponse, 0, len(b.tasks))
	for _, t := range b.tasks {
		if query != "" &&
			!strings.Contains(strings.ToLower(t.Title), query) &&
			!strings.Contains(strings.ToLower(t.Description), query) {
			continue
		}
		if b.dateRange != RangeAll && now.Sub(t.UpdatedAt) > window {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (b *Board) indexOf(id string) int {
	return slices.IndexFunc(b.tasks, func(t dto.TaskResponse) bool { return t.ID == id })
}

// failureMessage prefers the server's message over a generic fallback.
func failureMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, ErrNotLoggedIn) {
		return MsgLoginNeeded
	}
	return fallback
}

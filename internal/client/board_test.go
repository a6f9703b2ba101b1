package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/tasknest/tasknest/internal/handler/dto"
)

type captureNotifier struct {
	successes []string
	errors    []string
}

func (n *captureNotifier) Success(msg string) { n.successes = append(n.successes, msg) }
func (n *captureNotifier) Error(msg string)   { n.errors = append(n.errors, msg) }

func (n *captureNotifier) lastError() string {
	if len(n.errors) == 0 {
		return ""
	}
	return n.errors[len(n.errors)-1]
}

func (n *captureNotifier) lastSuccess() string {
	if len(n.successes) == 0 {
		return ""
	}
	return n.successes[len(n.successes)-1]
}

// fakeTaskAPI keeps tasks in memory and records calls.
type fakeTaskAPI struct {
	tasks []dto.TaskResponse
	err   error
	calls int
	seq   int
	now   time.Time
}

func (f *fakeTaskAPI) ListTasks(ctx context.Context) ([]dto.TaskResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]dto.TaskResponse{}, f.tasks...), nil
}

func (f *fakeTaskAPI) CreateTask(ctx context.Context, title, description string) (*dto.TaskResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.seq++
	t := dto.TaskResponse{ID: fmt.Sprintf("new-%d", f.seq), Title: title, Description: description, CreatedAt: f.now, UpdatedAt: f.now}
	f.tasks = append([]dto.TaskResponse{t}, f.tasks...)
	return &t, nil
}

func (f *fakeTaskAPI) UpdateTask(ctx context.Context, id, title, description string) (*dto.TaskResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Title = title
			f.tasks[i].Description = description
			f.tasks[i].UpdatedAt = f.now
			t := f.tasks[i]
			return &t, nil
		}
	}
	return nil, &APIError{Status: http.StatusNotFound, Code: "TASK_NOT_FOUND", Message: "Todo not found"}
}

func (f *fakeTaskAPI) DeleteTask(ctx context.Context, id string) (*dto.TaskResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			t := f.tasks[i]
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return &t, nil
		}
	}
	return nil, &APIError{Status: http.StatusNotFound, Code: "TASK_NOT_FOUND", Message: "Todo not found"}
}

var boardNow = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return boardNow.Add(-time.Duration(n) * 24 * time.Hour)
}

func newBoardFixture(t *testing.T, tasks ...dto.TaskResponse) (*Board, *fakeTaskAPI, *captureNotifier) {
	t.Helper()
	session := NewSession("")
	session.now = func() time.Time { return boardNow }
	if err := session.Set(testAuthResponse(boardNow.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	api := &fakeTaskAPI{tasks: tasks, now: boardNow}
	notify := &captureNotifier{}
	b := NewBoard(api, session, notify)
	b.now = func() time.Time { return boardNow }
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return b, api, notify
}

func TestBoard_SubmitRejectsBlankFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		title, desc string
	}{
		{"both empty", "", ""},
		{"title blank", "   ", "desc"},
		{"description blank", "title", "\t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, api, notify := newBoardFixture(t)
			before := api.calls
			b.SetForm(tt.title, tt.desc)

			_, err := b.Submit(context.Background())
			if !errors.Is(err, ErrBlankFields) {
				t.Fatalf("expected ErrBlankFields, got %v", err)
			}
			if api.calls != before {
				t.Error("expected no request for blank fields")
			}
			if notify.lastError() != MsgRequired {
				t.Errorf("expected %q, got %q", MsgRequired, notify.lastError())
			}
		})
	}
}

func TestBoard_CreatePrependsAndResetsForm(t *testing.T) {
	t.Parallel()

	b, _, notify := newBoardFixture(t, dto.TaskResponse{ID: "old", Title: "Old", Description: "d", UpdatedAt: daysAgo(1)})
	b.SetForm("Buy milk", "2 liters")

	task, err := b.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	tasks := b.Tasks()
	if len(tasks) != 2 || tasks[0].ID != task.ID || tasks[1].ID != "old" {
		t.Fatalf("expected new task first, got %+v", tasks)
	}
	if title, desc, editID := b.Form(); title != "" || desc != "" || editID != "" {
		t.Errorf("expected form reset, got %q %q %q", title, desc, editID)
	}
	if notify.lastSuccess() != MsgAdded {
		t.Errorf("expected %q, got %q", MsgAdded, notify.lastSuccess())
	}
}

func TestBoard_EditUpdatesInPlace(t *testing.T) {
	t.Parallel()

	b, _, notify := newBoardFixture(t,
		dto.TaskResponse{ID: "a", Title: "A", Description: "first", UpdatedAt: daysAgo(1)},
		dto.TaskResponse{ID: "b", Title: "B", Description: "second", UpdatedAt: daysAgo(2)},
	)

	if err := b.Edit("b"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if !b.Editing() {
		t.Fatal("expected edit mode")
	}
	if title, desc, _ := b.Form(); title != "B" || desc != "second" {
		t.Errorf("expected form loaded from task, got %q %q", title, desc)
	}

	b.SetForm("B2", "second, revised")
	if _, err := b.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	tasks := b.Tasks()
	if len(tasks) != 2 || tasks[1].ID != "b" || tasks[1].Title != "B2" {
		t.Fatalf("expected task b updated at its position, got %+v", tasks)
	}
	if b.Editing() {
		t.Error("expected edit mode cleared")
	}
	if notify.lastSuccess() != MsgUpdated {
		t.Errorf("expected %q, got %q", MsgUpdated, notify.lastSuccess())
	}
}

func TestBoard_EditUnknownTask(t *testing.T) {
	t.Parallel()

	b, _, _ := newBoardFixture(t)
	if err := b.Edit("missing"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestBoard_SubmitFailureKeepsState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"server message shown", &APIError{Status: 400, Code: "VALIDATION_ERROR", Message: "title must be at most 200 characters"}, "title must be at most 200 characters"},
		{"generic fallback", errors.New("connection refused"), MsgSaveFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, api, notify := newBoardFixture(t, dto.TaskResponse{ID: "a", Title: "A", Description: "d", UpdatedAt: daysAgo(0)})
			api.err = tt.err
			b.SetForm("New", "thing")

			if _, err := b.Submit(context.Background()); err == nil {
				t.Fatal("expected error")
			}
			if notify.lastError() != tt.wantMsg {
				t.Errorf("expected %q, got %q", tt.wantMsg, notify.lastError())
			}
			if len(b.Tasks()) != 1 {
				t.Error("expected list unchanged")
			}
			if title, desc, _ := b.Form(); title != "New" || desc != "thing" {
				t.Error("expected form kept for retry")
			}
		})
	}
}

func TestBoard_Delete(t *testing.T) {
	t.Parallel()

	b, api, notify := newBoardFixture(t,
		dto.TaskResponse{ID: "a", Title: "A", Description: "d", UpdatedAt: daysAgo(0)},
		dto.TaskResponse{ID: "b", Title: "B", Description: "d", UpdatedAt: daysAgo(0)},
	)
	if err := b.Edit("a"); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tasks := b.Tasks(); len(tasks) != 1 || tasks[0].ID != "b" {
		t.Fatalf("expected only b left, got %+v", tasks)
	}
	if b.Editing() {
		t.Error("expected edit of deleted task to be dropped")
	}
	if notify.lastSuccess() != MsgDeleted {
		t.Errorf("expected %q, got %q", MsgDeleted, notify.lastSuccess())
	}

	api.err = errors.New("boom")
	if _, err := b.Delete(context.Background(), "b"); err == nil {
		t.Fatal("expected error")
	}
	if len(b.Tasks()) != 1 {
		t.Error("expected failed delete to keep the task")
	}
	if notify.lastError() != MsgDeleteFailed {
		t.Errorf("expected %q, got %q", MsgDeleteFailed, notify.lastError())
	}
}

func TestBoard_RefreshFailureClearsList(t *testing.T) {
	t.Parallel()

	b, api, notify := newBoardFixture(t, dto.TaskResponse{ID: "a", Title: "A", Description: "d"})
	api.err = errors.New("network down")

	if err := b.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(b.Tasks()) != 0 {
		t.Error("expected list cleared after failed refresh")
	}
	if notify.lastError() != MsgFetchFailed {
		t.Errorf("expected %q, got %q", MsgFetchFailed, notify.lastError())
	}
}

func TestBoard_RefreshSignedOut(t *testing.T) {
	t.Parallel()

	api := &fakeTaskAPI{tasks: []dto.TaskResponse{{ID: "a"}}}
	notify := &captureNotifier{}
	b := NewBoard(api, NewSession(""), notify)

	if err := b.Refresh(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if api.calls != 0 {
		t.Error("expected no request when signed out")
	}
	if notify.lastError() != MsgLoginNeeded {
		t.Errorf("expected %q, got %q", MsgLoginNeeded, notify.lastError())
	}
}

func TestBoard_Visible(t *testing.T) {
	t.Parallel()

	tasks := []dto.TaskResponse{
		{ID: "1", Title: "Buy milk", Description: "2 liters", UpdatedAt: daysAgo(0)},
		{ID: "2", Title: "Call mom", Description: "about MILK delivery", UpdatedAt: daysAgo(5)},
		{ID: "3", Title: "Taxes", Description: "file return", UpdatedAt: daysAgo(20)},
		{ID: "4", Title: "Old note", Description: "archive", UpdatedAt: daysAgo(90)},
	}

	tests := []struct {
		name   string
		query  string
		rng    DateRange
		expect []string
	}{
		{"no filters", "", RangeAll, []string{"1", "2", "3", "4"}},
		{"title or description, any case", "milk", RangeAll, []string{"1", "2"}},
		{"no match", "zzz", RangeAll, []string{}},
		{"last 3 days", "", RangeLast3Days, []string{"1"}},
		{"last 7 days", "", RangeLast7Days, []string{"1", "2"}},
		{"last 30 days", "", RangeLast30Days, []string{"1", "2", "3"}},
		{"search and range combine", "milk", RangeLast3Days, []string{"1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, api, _ := newBoardFixture(t, tasks...)
			calls := api.calls
			b.SetSearch(tt.query)
			b.SetDateRange(tt.rng)

			got := b.Visible()
			ids := make([]string, 0, len(got))
			for _, task := range got {
				ids = append(ids, task.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.expect) {
				t.Errorf("expected %v, got %v", tt.expect, ids)
			}
			if api.calls != calls {
				t.Error("filtering must not hit the server")
			}
			if len(b.Tasks()) != len(tasks) {
				t.Error("filtering must not change the fetched list")
			}
		})
	}
}

func TestParseDateRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    DateRange
		wantErr bool
	}{
		{"", RangeAll, false},
		{"all", RangeAll, false},
		{"ALL", RangeAll, false},
		{"3", RangeLast3Days, false},
		{"7", RangeLast7Days, false},
		{" 30 ", RangeLast30Days, false},
		{"14", RangeAll, true},
		{"week", RangeAll, true},
	}

	for _, tt := range tests {
		got, err := ParseDateRange(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDateRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDateRange(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if RangeLast7Days.String() != "Last 7 Days" || RangeAll.String() != "All" {
		t.Error("unexpected DateRange labels")
	}
}

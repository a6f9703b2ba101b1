// Package main is the tasknest command-line client.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tasknest/tasknest/internal/client"
	"github.com/tasknest/tasknest/internal/config"
	"github.com/tasknest/tasknest/internal/handler/dto"
)

const usage = `usage: todo <command> [flags]

commands:
  register -name NAME -email EMAIL     create an account (password read from stdin)
  login -email EMAIL                   sign in (password read from stdin)
  logout                               revoke the current token
  me                                   show the signed-in user
  delete-account                       delete the signed-in account
  list [-q TEXT] [-range all|3|7|30]   list todos, newest first
  add -title T -desc D                 add a todo
  edit -title T -desc D ID             change a todo
  rm ID                                delete a todo
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// printer reports board notifications on the terminal.
type printer struct {
	out, errOut io.Writer
}

func (p printer) Success(msg string) { fmt.Fprintln(p.out, msg) }
func (p printer) Error(msg string)   { fmt.Fprintln(p.errOut, msg) }

type app struct {
	api     *client.API
	session *client.Session
	board   *client.Board
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return flag.ErrHelp
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	path := cfg.SessionFile
	if path == "" {
		path, err = defaultSessionPath()
		if err != nil {
			return err
		}
	}

	session, err := client.LoadSession(path)
	if err != nil {
		return err
	}
	api := client.NewAPI(cfg.APIURL, client.NewHTTPClient(cfg.Timeout), session)

	a := &app{
		api:     api,
		session: session,
		board:   client.NewBoard(api, session, printer{out: stdout, errOut: stderr}),
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}
	return a.dispatch(ctx, args[0], args[1:])
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.register(ctx, args)
	case "login":
		return a.login(ctx, args)
	case "logout":
		if err := a.api.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "Logged out")
		return nil
	case "me":
		user, err := a.api.Me(ctx)
		if err != nil {
			return err
		}
		printUser(a.stdout, user)
		return nil
	case "delete-account":
		user, err := a.api.DeleteAccount(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Deleted account %s\n", user.Email)
		return nil
	case "list", "ls":
		return a.list(ctx, args)
	case "add":
		return a.add(ctx, args)
	case "edit":
		return a.edit(ctx, args)
	case "rm", "delete":
		return a.remove(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(a.stdout, usage)
		return nil
	default:
		fmt.Fprint(a.stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register", a.stderr)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	password, err := a.readPassword()
	if err != nil {
		return err
	}
	user, err := a.api.Register(ctx, *name, *email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Registered and signed in as %s\n", user.Email)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login", a.stderr)
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	password, err := a.readPassword()
	if err != nil {
		return err
	}
	user, err := a.api.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Signed in as %s\n", user.Email)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list", a.stderr)
	query := fs.String("q", "", "case-insensitive search over title and description")
	rangeFlag := fs.String("range", "all", "only todos updated in the last 3, 7 or 30 days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dateRange, err := client.ParseDateRange(*rangeFlag)
	if err != nil {
		return err
	}

	if err := a.board.Refresh(ctx); err != nil {
		return err
	}
	a.board.SetSearch(*query)
	a.board.SetDateRange(dateRange)

	printTasks(a.stdout, a.board.Visible(), time.Now())
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := newFlagSet("add", a.stderr)
	title := fs.String("title", "", "todo title")
	desc := fs.String("desc", "", "todo description")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.board.SetForm(*title, *desc)
	task, err := a.board.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, task.ID)
	return nil
}

// edit fills unset flags from the stored task so a single field can change.
func (a *app) edit(ctx context.Context, args []string) error {
	fs := newFlagSet("edit", a.stderr)
	title := fs.String("title", "", "new title")
	desc := fs.String("desc", "", "new description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("edit takes exactly one todo id")
	}
	id := fs.Arg(0)

	if err := a.board.Refresh(ctx); err != nil {
		return err
	}
	if err := a.board.Edit(id); err != nil {
		return fmt.Errorf("todo %s: %w", id, err)
	}
	curTitle, curDesc, _ := a.board.Form()
	if *title != "" {
		curTitle = *title
	}
	if *desc != "" {
		curDesc = *desc
	}
	a.board.SetForm(curTitle, curDesc)

	_, err := a.board.Submit(ctx)
	return err
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("rm takes exactly one todo id")
	}
	_, err := a.board.Delete(ctx, args[0])
	return err
}

// readPassword takes the first line of stdin, falling back to TODO_PASSWORD.
func (a *app) readPassword() (string, error) {
	if p := os.Getenv("TODO_PASSWORD"); p != "" {
		return p, nil
	}
	if f, ok := a.stdin.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(a.stderr, "Password: ")
		}
	}
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func defaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "tasknest", "session.yaml"), nil
}

func printUser(w io.Writer, u *dto.UserResponse) {
	fmt.Fprintf(w, "%s <%s>\nid:      %s\njoined:  %s\n", u.Name, u.Email, u.ID, u.CreatedAt.Format(time.DateOnly))
}

func printTasks(w io.Writer, tasks []dto.TaskResponse, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No todos.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDESCRIPTION\tUPDATED")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, oneLine(t.Title, 40), oneLine(t.Description, 60), ago(now, t.UpdatedAt))
	}
	_ = tw.Flush()
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}

func ago(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

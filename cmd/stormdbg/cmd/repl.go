package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/dshills/stormdbg/internal/debug"
)

const promptText = "(stormdbg) "

// lineReader reads one command line at a time.
type lineReader interface {
	ReadLine() (string, error)
}

type scanReader struct {
	scanner *bufio.Scanner
}

func (r *scanReader) ReadLine() (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// console wires the prompt to the process terminal. On a terminal it
// switches to raw mode for line editing and history; restore undoes it.
type console struct {
	reader  lineReader
	out     io.Writer
	restore func()
}

func openConsole(in *os.File, out io.Writer) (*console, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return &console{
			reader:  &scanReader{scanner: bufio.NewScanner(in)},
			out:     out,
			restore: func() {},
		}, nil
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, promptText)
	return &console{
		reader:  t,
		out:     t,
		restore: func() { _ = term.Restore(fd, state) },
	}, nil
}

// errQuit ends the prompt loop.
var errQuit = errors.New("quit")

type replCommand struct {
	names []string
	args  string
	help  string
	run   func(r *repl, ctx context.Context, arg string) error
}

// repl executes prompt commands against a session.
type repl struct {
	session         *debug.Session
	evaluateTimeout time.Duration

	mu  sync.Mutex
	out io.Writer
}

func newREPL(session *debug.Session, out io.Writer, evaluateTimeout time.Duration) *repl {
	return &repl{session: session, out: out, evaluateTimeout: evaluateTimeout}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

// Observer returns an observer that reports session activity on the prompt.
func (r *repl) Observer() debug.Observer {
	return debug.ObserverFuncs{
		StateChanged: func(t debug.Transition) {
			switch t.To {
			case debug.StateSuspended:
				r.printf("stopped at %s\n", describeLocation(t.Location))
			case debug.StateDisconnected:
				if t.From != debug.StateConnecting {
					r.printf("session ended\n")
				}
			}
		},
		Event: func(e debug.Event) {
			switch ev := e.(type) {
			case debug.BreakpointRejected:
				r.printf("breakpoint %s rejected: %s\n", ev.Location.Editor, ev.Reason)
			case debug.ProcessExited:
				r.printf("process exited with code %d\n", ev.ExitCode)
			case debug.Disconnected:
				if ev.Reason != "" {
					r.printf("disconnected: %s\n", ev.Reason)
				}
			}
		},
	}
}

func describeLocation(loc debug.Location) string {
	if loc.Resolved {
		return loc.Editor.String()
	}
	return loc.Backend.String() + " (no source)"
}

// replCommands is set in init because help refers back to it.
var (
	replCommands []replCommand
	replIndex    map[string]*replCommand
)

func init() {
	replCommands = []replCommand{
		{names: []string{"continue", "c", "resume"}, help: "resume execution", run: func(r *repl, ctx context.Context, _ string) error {
			return r.session.Resume(ctx)
		}},
		{names: []string{"step", "s"}, help: "step into the next call", run: func(r *repl, ctx context.Context, _ string) error {
			return r.session.StepInto(ctx)
		}},
		{names: []string{"next", "n"}, help: "step over the next call", run: func(r *repl, ctx context.Context, _ string) error {
			return r.session.StepOver(ctx)
		}},
		{names: []string{"out", "o", "finish"}, help: "step out of the current frame", run: func(r *repl, ctx context.Context, _ string) error {
			return r.session.StepOut(ctx)
		}},
		{names: []string{"print", "p", "eval"}, args: "<expr>", help: "evaluate an expression", run: (*repl).evaluate},
		{names: []string{"break", "b"}, args: "<file:line>", help: "add a breakpoint", run: func(r *repl, ctx context.Context, arg string) error {
			loc, err := parseLocation(arg)
			if err != nil {
				return err
			}
			bp, err := r.session.AddBreakpoint(ctx, loc)
			if err != nil {
				return err
			}
			r.printf("breakpoint at %s\n", bp.Location)
			return nil
		}},
		{names: []string{"delete", "d", "clear"}, args: "<file:line>", help: "remove a breakpoint", run: func(r *repl, ctx context.Context, arg string) error {
			loc, err := parseLocation(arg)
			if err != nil {
				return err
			}
			return r.session.RemoveBreakpoint(ctx, loc)
		}},
		{names: []string{"enable"}, args: "<file:line>", help: "enable a breakpoint", run: func(r *repl, ctx context.Context, arg string) error {
			return r.setEnabled(ctx, arg, true)
		}},
		{names: []string{"disable"}, args: "<file:line>", help: "disable a breakpoint", run: func(r *repl, ctx context.Context, arg string) error {
			return r.setEnabled(ctx, arg, false)
		}},
		{names: []string{"breakpoints", "bl"}, help: "list breakpoints", run: func(r *repl, _ context.Context, _ string) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			return printBreakpoints(r.out, r.session.Breakpoints())
		}},
		{names: []string{"where", "w", "state"}, help: "show the session state", run: func(r *repl, _ context.Context, _ string) error {
			state := r.session.State()
			if loc, ok := r.session.Location(); ok {
				r.printf("%s at %s\n", state, describeLocation(loc))
				return nil
			}
			r.printf("%s\n", state)
			return nil
		}},
		{names: []string{"help", "h", "?"}, help: "show this help", run: func(r *repl, _ context.Context, _ string) error {
			r.printHelp()
			return nil
		}},
		{names: []string{"quit", "q", "exit"}, help: "disconnect and exit", run: func(r *repl, _ context.Context, _ string) error {
			return errQuit
		}},
	}

	replIndex = make(map[string]*replCommand)
	for i := range replCommands {
		for _, name := range replCommands[i].names {
			replIndex[name] = &replCommands[i]
		}
	}
}

// exec runs one command line. It returns errQuit for the quit command.
func (r *repl) exec(ctx context.Context, line string) error {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	if name == "" {
		return nil
	}
	arg = strings.TrimSpace(arg)

	c, ok := replIndex[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", name)
	}
	if c.args != "" && arg == "" {
		return fmt.Errorf("usage: %s %s", c.names[0], c.args)
	}
	return c.run(r, ctx, arg)
}

func (r *repl) evaluate(ctx context.Context, expr string) error {
	ev, err := r.session.Evaluate(ctx, expr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, r.evaluateTimeout)
	defer cancel()
	value, err := ev.Wait(ctx)
	if err != nil {
		return err
	}
	r.printf("%s = %s\n", expr, value)
	return nil
}

func (r *repl) setEnabled(ctx context.Context, arg string, enabled bool) error {
	loc, err := parseLocation(arg)
	if err != nil {
		return err
	}
	_, err = r.session.SetBreakpointEnabled(ctx, loc, enabled)
	return err
}

func (r *repl) printHelp() {
	cmds := append([]replCommand(nil), replCommands...)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].names[0] < cmds[j].names[0] })

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		usage := strings.Join(c.names, ", ")
		if c.args != "" {
			usage += " " + c.args
		}
		fmt.Fprintf(r.out, "  %-32s %s\n", usage, c.help)
	}
}

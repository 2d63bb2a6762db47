package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dshills/stormdbg/internal/debug"
)

var (
	attachKind   string
	attachParams []string
	attachBreaks []string
)

var attachCmd = &cobra.Command{
	Use:   "attach [key=value...]",
	Short: "Attach to a debugger and open a command prompt",
	Long: `Attach to a running debugger. Connection parameters are merged over
backend.params from the configuration; saved breakpoints and --break
locations are installed once the session is attached.

Type help at the prompt for the available commands.`,
	Example: `  stormdbg attach --kind jdb host=localhost port=5005
  stormdbg attach --kind delve port=2345 --break ./main.go:12`,
	RunE: runAttach,
}

func init() {
	attachCmd.Flags().StringVar(&attachKind, "kind", "", kindUsage())
	attachCmd.Flags().StringArrayVarP(&attachParams, "param", "p", nil, "connection parameter key=value (repeatable)")
	attachCmd.Flags().StringArrayVarP(&attachBreaks, "break", "b", nil, "breakpoint file:line (repeatable)")
}

func runAttach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	kind, err := resolveKind(attachKind, cfg, breakpointFiles(attachBreaks))
	if err != nil {
		return err
	}
	params, err := parseParams(cfg.Backend.Params, append(append([]string(nil), attachParams...), args...))
	if err != nil {
		return err
	}

	transport, err := newTransport(kind, cfg)
	if err != nil {
		return err
	}
	rt, err := newRuntime(kind, cfg, transport)
	if err != nil {
		return err
	}
	defer rt.Close()
	session := rt.Session

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Breakpoints added before attach are submitted by the attach itself.
	for _, spec := range attachBreaks {
		loc, err := parseLocation(spec)
		if err != nil {
			return err
		}
		if _, err := session.AddBreakpoint(ctx, loc); err != nil {
			return err
		}
	}

	con, err := openConsole(os.Stdin, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer con.restore()
	if con.out != cmd.OutOrStdout() {
		// Raw mode needs log lines routed through the terminal.
		setupLogging(cfg, con.out)
		defer setupLogging(cfg, os.Stderr)
	}

	r := newREPL(session, con.out, cfg.Session.EvaluateTimeout)
	ended := make(chan struct{})
	session.AddObserver(r.Observer())
	session.AddObserver(debug.ObserverFuncs{StateChanged: func(t debug.Transition) {
		if t.To == debug.StateDisconnected && t.From == debug.StateDisconnecting {
			close(ended)
		}
	}})

	attachCtx, cancel := context.WithTimeout(ctx, cfg.Transport.DialTimeout+cfg.Session.CommandTimeout)
	err = session.Attach(attachCtx, params)
	cancel()
	if err != nil {
		return err
	}
	r.printf("attached to %s [%s]\n", session.Descriptor(), session.ID())
	log.Debug().Str("kind", kind).Str("session_id", session.ID()).Msg("attached")

	return prompt(ctx, r, con.reader, ended)
}

// prompt reads commands until quit, end of input, a signal or the end of
// the session.
func prompt(ctx context.Context, r *repl, reader lineReader, ended <-chan struct{}) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := reader.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			lines <- line
		}
	}()

	for {
		if _, ok := reader.(*scanReader); ok {
			r.printf("%s", promptText)
		}
		select {
		case <-ctx.Done():
			return disconnect(r.session)
		case <-ended:
			return nil
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return disconnect(r.session)
			}
			return err
		case line := <-lines:
			err := r.exec(ctx, line)
			switch {
			case errors.Is(err, errQuit):
				return disconnect(r.session)
			case err != nil:
				r.printf("error: %v\n", err)
			}
		}
	}
}

func disconnect(s *debug.Session) error {
	switch s.State() {
	case debug.StateRunning, debug.StateSuspended:
	default:
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), debug.DefaultCommandTimeout)
	defer cancel()
	if err := s.Disconnect(ctx); err != nil && !errors.Is(err, debug.ErrIllegalState) {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

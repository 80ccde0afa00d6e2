package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/tutorgraph/internal/logging"
	"github.com/aretw0/tutorgraph/internal/presentation/tui"
	"github.com/aretw0/tutorgraph/pkg/domain"
	"github.com/aretw0/tutorgraph/pkg/ports"
	"github.com/aretw0/tutorgraph/pkg/session"
)

// Replier continues a conversation with one human turn.
type Replier interface {
	Reply(ctx context.Context, state domain.State, text string) (ports.RunResult, error)
}

// ChatOptions configures an interactive session.
type ChatOptions struct {
	In  io.Reader
	Out io.Writer
	// SessionID, when set, loads and saves the conversation in the store.
	SessionID string
	Role      domain.Role
	// JSON prints one NDJSON record per run instead of rendered messages.
	JSON   bool
	Render tui.Renderer
	Logger *slog.Logger
}

// TurnRecord is the NDJSON line written per run in JSON mode.
type TurnRecord struct {
	RunID string            `json:"run_id"`
	Path  []domain.NodeID   `json:"path,omitempty"`
	Steps int               `json:"steps"`
	Diff  *domain.StateDiff `json:"diff,omitempty"`
	Error string            `json:"error,omitempty"`
}

var quitCommands = map[string]bool{"q": true, "quit": true, "exit": true}

// Chat reads one human turn per line and runs the graph for each.
// A failed run is reported and the conversation continues from the last good state.
// With a session ID every turn runs on the latest saved state under the session lock.
func Chat(ctx context.Context, engine Replier, sessions *session.Manager, opts ChatOptions) error {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Render == nil {
		opts.Render = tui.PlainRenderer
	}

	state, resumed, err := startSession(ctx, sessions, opts.SessionID, opts.Role)
	if err != nil {
		return err
	}
	if resumed && !opts.JSON {
		printSystemMessage(opts.Out, "Resuming session '%s' (%d messages).", opts.SessionID, len(state.Messages))
	}

	enc := json.NewEncoder(opts.Out)
	scanner := bufio.NewScanner(NewInterruptibleReader(opts.In, ctx.Done()))
	prompt := func() {
		if !opts.JSON {
			fmt.Fprint(opts.Out, "> ")
		}
	}

	for prompt(); scanner.Scan(); prompt() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quitCommands[strings.ToLower(line)] {
			break
		}

		before, res, err := runTurn(ctx, engine, sessions, opts.SessionID, state, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			opts.Logger.Warn("run failed", "run_id", state.RunID, "err", err)
			if opts.JSON {
				if encErr := enc.Encode(TurnRecord{RunID: state.RunID, Error: err.Error()}); encErr != nil {
					return encErr
				}
			} else {
				printSystemMessage(opts.Out, "Error: %v", err)
			}
			continue
		}

		if err := emitTurn(opts, enc, before, res); err != nil {
			return err
		}
		state = res.State
	}

	if err := scanner.Err(); err != nil && !isInterrupted(err) {
		return err
	}
	return nil
}

func startSession(ctx context.Context, sessions *session.Manager, sessionID string, role domain.Role) (domain.State, bool, error) {
	if sessions != nil && sessionID != "" {
		return sessions.LoadOrStart(ctx, sessionID, role)
	}

	state, err := domain.NewState(role)
	if err != nil {
		return domain.State{}, false, err
	}
	if sessionID != "" {
		state.RunID = sessionID
	}
	return state, false, nil
}

// runTurn returns the state the turn started from along with its result.
func runTurn(ctx context.Context, engine Replier, sessions *session.Manager, sessionID string, state domain.State, text string) (domain.State, ports.RunResult, error) {
	if sessions == nil || sessionID == "" {
		res, err := engine.Reply(ctx, state, text)
		return state, res, err
	}

	var res ports.RunResult
	before := state
	_, err := sessions.Update(ctx, sessionID, state.Role, func(ctx context.Context, latest domain.State) (domain.State, error) {
		before = latest
		var err error
		res, err = engine.Reply(ctx, latest, text)
		return res.State, err
	})
	return before, res, err
}

func emitTurn(opts ChatOptions, enc *json.Encoder, before domain.State, res ports.RunResult) error {
	diff := domain.Diff(&before, &res.State)
	if opts.JSON {
		return enc.Encode(TurnRecord{
			RunID: res.State.RunID,
			Path:  res.Path,
			Steps: res.Steps,
			Diff:  diff,
		})
	}

	if diff == nil {
		return nil
	}
	for _, m := range diff.Appended {
		if m.Kind == domain.KindHuman {
			continue
		}
		out, err := opts.Render(tui.FormatMessage(m))
		if err != nil {
			return err
		}
		fmt.Fprint(opts.Out, out)
	}
	return nil
}

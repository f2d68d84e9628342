// Package runner is the shipped Invoker: it executes a trigger's
// configured shell command, passing the triggering item through the
// environment and streaming combined output to a log writer.
package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nholden/tidewatch/internal/match"
	"github.com/nholden/tidewatch/internal/storage"
	"github.com/nholden/tidewatch/internal/trigger"
)

// Shell runs trigger commands via "sh -c".
//
// Environment contract for the command:
//
//	TIDEWATCH_INVOCATION      unique id for this invocation
//	TIDEWATCH_TRIGGER         trigger name
//	TIDEWATCH_ACCOUNT         account identity (blob triggers)
//	TIDEWATCH_CONTAINER       container name (blob triggers)
//	TIDEWATCH_BLOB            blob name (blob triggers)
//	TIDEWATCH_ROUTE_<NAME>    one var per captured route value
//	TIDEWATCH_QUEUE           queue name (queue triggers)
//	TIDEWATCH_MESSAGE_ID      message id (queue triggers)
//	TIDEWATCH_MESSAGE         message body (queue triggers)
type Shell struct {
	// Output receives combined stdout and stderr of every command.
	// Nil means os.Stdout.
	Output io.Writer

	// Timeout bounds each invocation. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
}

func (s *Shell) InvokeBlob(ctx context.Context, t *trigger.Blob, blob storage.Blob, rv match.RouteValues) error {
	env := []string{
		"TIDEWATCH_ACCOUNT=" + blob.Container.Account,
		"TIDEWATCH_CONTAINER=" + blob.Container.Name,
		"TIDEWATCH_BLOB=" + blob.Name,
	}
	for name, val := range rv {
		env = append(env, "TIDEWATCH_ROUTE_"+strings.ToUpper(name)+"="+val)
	}
	return s.run(ctx, t.Name, t.Command, env)
}

func (s *Shell) InvokeQueue(ctx context.Context, t *trigger.Queue, msg *storage.Message) error {
	env := []string{
		"TIDEWATCH_QUEUE=" + t.Queue.ID().Name,
		"TIDEWATCH_MESSAGE_ID=" + msg.ID,
		"TIDEWATCH_MESSAGE=" + string(msg.Body),
	}
	return s.run(ctx, t.Name, t.Command, env)
}

func (s *Shell) run(ctx context.Context, triggerName, command string, env []string) error {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	invocation := uuid.NewString()
	out := s.Output
	if out == nil {
		out = os.Stdout
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Env = append(os.Environ(),
		append(env,
			"TIDEWATCH_INVOCATION="+invocation,
			"TIDEWATCH_TRIGGER="+triggerName,
		)...)

	start := time.Now()
	log.Printf("[runner] %s: invocation %s starting", triggerName, invocation)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("trigger %s invocation %s: %w", triggerName, invocation, err)
	}
	log.Printf("[runner] %s: invocation %s done in %s", triggerName, invocation, time.Since(start).Round(time.Millisecond))
	return nil
}

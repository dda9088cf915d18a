package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"pubflow/internal/domain"
)

// Exec runs an external automation command once per publish. The task is
// written to the command's stdin as JSON; exit code zero means success and
// the last line of output becomes the result message. This keeps the browser
// automation itself out of process, so a hung or crashed run can be killed
// via ctx without taking the scheduler down.
type Exec struct {
	Command  string
	Args     []string
	Headless bool // exported to the command via PUBFLOW_HEADLESS
}

func (e Exec) Publish(ctx context.Context, task domain.Task) (domain.Result, error) {
	if e.Command == "" {
		return domain.Result{}, fmt.Errorf("publisher command not configured")
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return domain.Result{}, fmt.Errorf("encode task: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(cmd.Environ(), "PUBFLOW_HEADLESS="+strconv.FormatBool(e.Headless))

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return domain.Result{}, ctx.Err()
		}
		return domain.Result{}, fmt.Errorf("publisher command: %v; out=%s", err, lastLine(out))
	}
	return domain.Result{Success: true, Message: lastLine(out)}, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

package alert

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Caller contacts a caregiver about an alert. It reports whether the
// contact was started, not whether anyone answered.
type Caller interface {
	Call(ctx context.Context, a Alert) error
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, a Alert) error

func (f CallerFunc) Call(ctx context.Context, a Alert) error { return f(ctx, a) }

// CommandCaller launches an external calling program. The alert is passed
// through POSTURE_ALERT_* environment variables. The program is not waited
// on beyond being started.
type CommandCaller struct {
	Program string
	Args    []string
}

// Call starts the program.
func (c CommandCaller) Call(ctx context.Context, a Alert) error {
	if c.Program == "" {
		return fmt.Errorf("no caller program configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(c.Program, c.Args...)
	cmd.Env = append(os.Environ(),
		"POSTURE_ALERT_ID="+a.ID,
		"POSTURE_ALERT_REASON="+a.Reason,
		"POSTURE_ALERT_LABEL="+a.Label,
		"POSTURE_ALERT_FALL_PROBABILITY="+strconv.FormatFloat(a.FallProbability, 'f', 3, 64),
		"POSTURE_ALERT_WEARABLE="+a.Wearable.String(),
	)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.Program, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logf("caller %s exited: %v", c.Program, err)
		}
	}()
	return nil
}

package provision

import (
	"context"
	"fmt"

	"github.com/mattn/go-shellwords"
	"github.com/openfroyo/bootstrap/pkg/gateway"
)

func (e *Env) tweaks(ctx context.Context) error {
	logger := e.logger(PhaseTweaks)

	for _, line := range e.profile().Tweaks {
		action, err := ParseCommand(line)
		if err != nil {
			return err
		}
		if err := e.Gateway.Execute(ctx, action.Describe("apply tweak")); err != nil {
			return fmt.Errorf("tweak failed: %w", err)
		}
	}

	for _, proc := range e.profile().RestartProcesses {
		// killall fails when the process is not running.
		if err := e.Gateway.Execute(ctx, gateway.Command("killall", proc).Describe("restart "+proc)); err != nil {
			logger.WithError(err).Warnf("Could not restart %s", proc)
		}
	}
	return nil
}

// ParseCommand splits a configured command line into an action using
// shell-word rules. Shell operators and substitutions are rejected.
func ParseCommand(line string) (gateway.Action, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = false
	parser.ParseBacktick = false

	args, err := parser.Parse(line)
	if err != nil {
		return gateway.Action{}, fmt.Errorf("invalid command %q: %w", line, err)
	}
	if parser.Position >= 0 {
		return gateway.Action{}, fmt.Errorf("invalid command %q: shell operators are not supported", line)
	}
	if len(args) == 0 {
		return gateway.Action{}, fmt.Errorf("empty command")
	}
	return gateway.Command(args[0], args[1:]...), nil
}

package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecSource shells out to a platform locator command for each fix
// (termux-location, CoreLocationCLI and similar). The command must
// print JSON with latitude/longitude fields. High accuracy is
// requested via the command's own arguments; every call is a fresh
// fix, nothing is cached.
type ExecSource struct {
	Command string
	Args    []string
}

type execFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
}

func (e *ExecSource) Current(ctx context.Context) (Position, error) {
	out, err := exec.CommandContext(ctx, e.Command, e.Args...).Output()
	if ctx.Err() != nil {
		return Position{}, ErrTimeout
	}
	if err != nil {
		return Position{}, fmt.Errorf("%s: %v: %w", e.Command, err, ErrUnavailable)
	}

	var fix execFix
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(out))), &fix); err != nil {
		return Position{}, fmt.Errorf("%s output: %v: %w", e.Command, err, ErrUnavailable)
	}
	if fix.Latitude == 0 && fix.Longitude == 0 {
		return Position{}, ErrUnavailable
	}
	return Position{
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
		Time:      time.Now(),
	}, nil
}

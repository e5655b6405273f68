package sap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	commandField = "wnd[0]/tbar[0]/okcd"
	backButton   = "wnd[0]/tbar[0]/btn[3]"

	minBackPresses  = 3
	capBackPresses  = 4
	backPressSettle = 300 * time.Millisecond
)

// NavigationPolicy selects how the navigator decides it is back on the base screen.
type NavigationPolicy string

const (
	// PolicyFixed presses back at least three times and at most four, stopping
	// once the minimum is reached and the command field is present.
	PolicyFixed NavigationPolicy = "fixed"
	// PolicyPoll checks for the command field before each press and stops as soon
	// as it is present, up to the configured maximum.
	PolicyPoll NavigationPolicy = "poll"
)

// ParseNavigationPolicy accepts "fixed" or "poll"; empty means fixed.
func ParseNavigationPolicy(raw string) (NavigationPolicy, error) {
	switch NavigationPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", PolicyFixed:
		return PolicyFixed, nil
	case PolicyPoll:
		return PolicyPoll, nil
	default:
		return "", fmt.Errorf("unknown navigation policy %q (want fixed or poll)", raw)
	}
}

// NavigationResult reports how many back presses happened and whether the base
// screen was confirmed.
type NavigationResult struct {
	Outcome
	Presses int
}

// Navigator returns the session to the base screen between transactions.
// It never fails the run on its own; only element errors are returned.
type Navigator struct {
	policy     NavigationPolicy
	maxPresses int
	settle     time.Duration
	logger     *slog.Logger
}

func NewNavigator(policy NavigationPolicy, maxPresses int, logger *slog.Logger) *Navigator {
	if policy == "" {
		policy = PolicyFixed
	}
	if maxPresses <= 0 {
		maxPresses = 20
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Navigator{policy: policy, maxPresses: maxPresses, settle: backPressSettle, logger: logger}
}

// BackToBase presses back until the command field is available.
func (n *Navigator) BackToBase(ctx context.Context, s *Session) (NavigationResult, error) {
	var (
		res NavigationResult
		err error
	)
	if n.policy == PolicyPoll {
		res, err = n.pollBack(ctx, s)
	} else {
		res, err = n.fixedBack(ctx, s)
	}
	if err != nil {
		return res, err
	}
	if res.Degraded() {
		n.logger.WarnContext(ctx, "back navigation limit reached", "presses", res.Presses, "reason", res.Reason)
	} else {
		n.logger.InfoContext(ctx, "back navigation done", "presses", res.Presses)
	}
	return res, nil
}

func (n *Navigator) fixedBack(ctx context.Context, s *Session) (NavigationResult, error) {
	limit := max(minBackPresses, min(n.maxPresses, capBackPresses))
	var res NavigationResult
	for res.Presses < limit {
		if !s.Exists(backButton) {
			n.logger.InfoContext(ctx, "back button unavailable, continuing")
			res.Outcome = success()
			return res, nil
		}
		if err := n.press(ctx, s, &res); err != nil {
			return res, err
		}
		if res.Presses >= minBackPresses && s.Exists(commandField) {
			res.Outcome = success()
			return res, nil
		}
	}
	res.Outcome = degraded(fmt.Sprintf("command field not confirmed after %d back presses", res.Presses))
	return res, nil
}

func (n *Navigator) pollBack(ctx context.Context, s *Session) (NavigationResult, error) {
	var res NavigationResult
	for res.Presses < n.maxPresses {
		if s.Exists(commandField) {
			res.Outcome = success()
			return res, nil
		}
		if !s.Exists(backButton) {
			n.logger.InfoContext(ctx, "back button unavailable, continuing")
			res.Outcome = success()
			return res, nil
		}
		if err := n.press(ctx, s, &res); err != nil {
			return res, err
		}
	}
	if s.Exists(commandField) {
		res.Outcome = success()
		return res, nil
	}
	res.Outcome = degraded(fmt.Sprintf("command field not present after %d back presses", res.Presses))
	return res, nil
}

func (n *Navigator) press(ctx context.Context, s *Session, res *NavigationResult) error {
	if err := s.Press(backButton); err != nil {
		return err
	}
	res.Presses++
	return sleep(ctx, n.settle)
}

package sap

import (
	"context"
	"testing"
)

// backWorld shows the command field once back has been pressed appearAt times.
func backWorld(appearAt int) *fakeGUI {
	gui := newFakeGUI(backButton)
	presses := 0
	gui.onPress[backButton] = func(g *fakeGUI) {
		presses++
		if appearAt > 0 && presses >= appearAt {
			g.show(commandField)
		}
	}
	return gui
}

func testNavigator(policy NavigationPolicy, maxPresses int) *Navigator {
	n := NewNavigator(policy, maxPresses, nil)
	n.settle = 0
	return n
}

func TestFixedNavigationStopsAfterThree(t *testing.T) {
	gui := backWorld(3)
	res, err := testNavigator(PolicyFixed, 20).BackToBase(context.Background(), NewSession(gui))
	if err != nil {
		t.Fatalf("BackToBase: %v", err)
	}
	if res.Presses != 3 || res.Degraded() {
		t.Fatalf("got %d presses, degraded=%v", res.Presses, res.Degraded())
	}
	if gui.count("press "+backButton) != 3 {
		t.Fatalf("expected 3 presses, got %d", gui.count("press "+backButton))
	}
}

func TestFixedNavigationPressesMinimumEvenWhenFieldPresent(t *testing.T) {
	gui := backWorld(1)
	gui.show(commandField)
	res, err := testNavigator(PolicyFixed, 20).BackToBase(context.Background(), NewSession(gui))
	if err != nil {
		t.Fatalf("BackToBase: %v", err)
	}
	if res.Presses != 3 {
		t.Fatalf("expected minimum of 3 presses, got %d", res.Presses)
	}
}

func TestFixedNavigationCapsAtFour(t *testing.T) {
	gui := backWorld(0)
	res, err := testNavigator(PolicyFixed, 20).BackToBase(context.Background(), NewSession(gui))
	if err != nil {
		t.Fatalf("BackToBase must not fail: %v", err)
	}
	if res.Presses != 4 || !res.Degraded() {
		t.Fatalf("got %d presses, degraded=%v", res.Presses, res.Degraded())
	}
	if gui.count("press "+backButton) != 4 {
		t.Fatalf("expected 4 presses, got %d", gui.count("press "+backButton))
	}
}

func TestFixedNavigationMinimumWhenMaxIsLow(t *testing.T) {
	gui := backWorld(0)
	res, _ := testNavigator(PolicyFixed, 1).BackToBase(context.Background(), NewSession(gui))
	if res.Presses != 3 {
		t.Fatalf("expected 3 presses with max=1, got %d", res.Presses)
	}
}

func TestNavigationMissingBackButtonIsSuccess(t *testing.T) {
	for _, policy := range []NavigationPolicy{PolicyFixed, PolicyPoll} {
		gui := newFakeGUI()
		res, err := testNavigator(policy, 20).BackToBase(context.Background(), NewSession(gui))
		if err != nil || res.Degraded() || res.Presses != 0 {
			t.Fatalf("%s: got %+v, %v", policy, res, err)
		}
	}
}

func TestPollNavigationStopsWhenFieldPresent(t *testing.T) {
	gui := backWorld(2)
	res, err := testNavigator(PolicyPoll, 20).BackToBase(context.Background(), NewSession(gui))
	if err != nil {
		t.Fatalf("BackToBase: %v", err)
	}
	if res.Presses != 2 || res.Degraded() {
		t.Fatalf("got %d presses, degraded=%v", res.Presses, res.Degraded())
	}

	gui = backWorld(0)
	gui.show(commandField)
	res, _ = testNavigator(PolicyPoll, 20).BackToBase(context.Background(), NewSession(gui))
	if res.Presses != 0 {
		t.Fatalf("expected no presses when already on base screen, got %d", res.Presses)
	}
}

func TestPollNavigationExhaustsMaximum(t *testing.T) {
	gui := backWorld(0)
	res, err := testNavigator(PolicyPoll, 5).BackToBase(context.Background(), NewSession(gui))
	if err != nil {
		t.Fatalf("BackToBase: %v", err)
	}
	if res.Presses != 5 || !res.Degraded() {
		t.Fatalf("got %d presses, degraded=%v", res.Presses, res.Degraded())
	}
}

func TestParseNavigationPolicy(t *testing.T) {
	for raw, want := range map[string]NavigationPolicy{"": PolicyFixed, "FIXED": PolicyFixed, " poll ": PolicyPoll} {
		got, err := ParseNavigationPolicy(raw)
		if err != nil || got != want {
			t.Fatalf("ParseNavigationPolicy(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseNavigationPolicy("random"); err == nil {
		t.Fatalf("expected error")
	}
}

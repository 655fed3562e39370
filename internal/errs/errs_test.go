package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestWrapKeepsChain(t *testing.T) {
	root := errors.New("disk full")
	err := Wrapf(Wrap(root, "insert rating"), "vote on patch %d", 7)

	if !errors.Is(err, root) {
		t.Fatalf("errors.Is(wrapped, root) = false")
	}
	if got := err.Error(); got != "vote on patch 7: insert rating: disk full" {
		t.Fatalf("Error() = %q", got)
	}
	if Wrap(nil, "noop") != nil || Wrapf(nil, "noop %d", 1) != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
}

func TestErrorChainStringsWalksJoinedErrors(t *testing.T) {
	invalid := errors.New("import document is invalid")
	decode := errors.New("unexpected EOF")
	err := Wrap(fmt.Errorf("decode export.json: %w: %w", invalid, decode), "import")

	chain := ErrorChainStrings(err)
	want := []string{
		"import: decode export.json: import document is invalid: unexpected EOF",
		"decode export.json: import document is invalid: unexpected EOF",
		"import document is invalid",
		"unexpected EOF",
	}
	if strings.Join(chain, "|") != strings.Join(want, "|") {
		t.Fatalf("ErrorChainStrings() = %q, want %q", chain, want)
	}
	if ErrorChainStrings(nil) != nil {
		t.Fatalf("ErrorChainStrings(nil) != nil")
	}
}

func TestWithStackCapturesOnce(t *testing.T) {
	err := WithStack(errors.New("connection reset"))
	again := WithStack(Wrap(err, "tally ratings"))

	var se *StackError
	if !errors.As(again, &se) || len(se.Stack()) == 0 {
		t.Fatalf("stack not captured: %v", again)
	}
	if se != err {
		t.Fatalf("WithStack captured a second stack")
	}
	if WithStack(nil) != nil {
		t.Fatalf("WithStack(nil) != nil")
	}
}

func TestLoggableIncludesStack(t *testing.T) {
	value := Loggable(WithStack(errors.New("boom"))).LogValue()
	if value.Kind() != slog.KindGroup {
		t.Fatalf("LogValue kind = %s, want group", value.Kind())
	}

	keys := map[string]bool{}
	for _, attr := range value.Group() {
		keys[attr.Key] = true
	}
	if !keys["message"] || !keys["stack"] {
		t.Fatalf("LogValue keys = %v", keys)
	}
}

package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUsesOutermostKind(t *testing.T) {
	base := errors.New("row missing")
	err := Unexpected(fmt.Errorf("rollback: %w", NotFound(base)))

	if got := KindOf(err); got != KindUnexpected {
		t.Fatalf("KindOf() = %v, want unexpected", got)
	}
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is() lost the cause")
	}
}

func TestKindOfPlainErrorIsUnexpected(t *testing.T) {
	if got := KindOf(errors.New("boom")); got != KindUnexpected {
		t.Fatalf("KindOf() = %v", got)
	}
	if got := KindOf(Wrap(Conflict(errors.New("twice")), "mark")); got != KindConflict {
		t.Fatalf("KindOf(wrapped conflict) = %v", got)
	}
}

func TestMessageHidesUnexpectedCause(t *testing.T) {
	err := Unexpected(errors.New("dial tcp 10.0.0.1:5432: connection refused"))
	if got := Message(err); got != "unexpected error" {
		t.Fatalf("Message() = %q", got)
	}
	if got := Message(Validation("title is required")); got != "title is required" {
		t.Fatalf("Message(validation) = %q", got)
	}
	if got := Message(NotFound(errors.New("todo not found"))); got != "todo not found" {
		t.Fatalf("Message(not found) = %q", got)
	}
}

func TestErrorChainStringsWalksJoinedErrors(t *testing.T) {
	err := Wrap(errors.Join(errors.New("a"), errors.New("b")), "outer")
	chain := ErrorChainStrings(err)
	if len(chain) != 4 {
		t.Fatalf("chain = %v", chain)
	}
	if chain[2] != "a" || chain[3] != "b" {
		t.Fatalf("chain = %v", chain)
	}
}

func TestWithStackCapturesOnce(t *testing.T) {
	err := WithStack(WithStack(errors.New("misuse")))
	var se *StackError
	if !errors.As(err, &se) {
		t.Fatalf("expected StackError")
	}
	if _, ok := se.Unwrap().(*StackError); ok {
		t.Fatalf("stack captured twice")
	}
	if len(se.Stack()) == 0 {
		t.Fatalf("empty stack")
	}
}

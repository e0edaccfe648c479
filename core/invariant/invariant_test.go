package invariant_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opal-lang/beast/core/invariant"
)

func panicMessage(t *testing.T, fn func()) string {
	t.Helper()
	var msg string
	func() {
		defer func() {
			if r := recover(); r != nil {
				msg = fmt.Sprintf("%v", r)
			}
		}()
		fn()
	}()
	return msg
}

func TestAssertionsPass(t *testing.T) {
	assert.NotPanics(t, func() {
		invariant.Precondition(true, "ok")
		invariant.Postcondition(1+1 == 2, "math works")
		invariant.Invariant(len("beast") == 5, "length")
		invariant.NotNil(&struct{}{}, "value")
		invariant.ExpectNoError(nil, "noop")
	})
}

func TestAssertionMessages(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
		want string
	}{
		{"precondition", func() { invariant.Precondition(false, "data must not be empty") }, "PRECONDITION VIOLATION: data must not be empty"},
		{"postcondition", func() { invariant.Postcondition(false, "got %d", 3) }, "POSTCONDITION VIOLATION: got 3"},
		{"invariant", func() { invariant.Invariant(false, "lexer must advance") }, "INVARIANT VIOLATION: lexer must advance"},
		{"nil", func() { invariant.NotNil(nil, "module") }, "module must not be nil"},
		{"error", func() { invariant.ExpectNoError(errors.New("boom"), "encode") }, "encode must not fail: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := panicMessage(t, tt.fn)
			assert.Contains(t, msg, tt.want)
			assert.Contains(t, msg, "\n  at ", "violation should name its call site")
		})
	}
}

func TestNotNilTypedNil(t *testing.T) {
	var p *int
	var m map[string]int
	assert.Contains(t, panicMessage(t, func() { invariant.NotNil(p, "ptr") }), "ptr must not be nil")
	assert.Contains(t, panicMessage(t, func() { invariant.NotNil(m, "map") }), "map must not be nil")
	assert.NotPanics(t, func() { invariant.NotNil(0, "zero int") })
}

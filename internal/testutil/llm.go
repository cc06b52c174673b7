// llm.go - Scripted LLM used by agent and server tests
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/xhad/insight/internal/types"
	"github.com/xhad/insight/pkg/llm"
)

// Call is one recorded completion request.
type Call struct {
	System string
	User   string
}

// FakeLLM implements types.Completer. Reply decides the answer for each call;
// without it every call echoes the user prompt.
type FakeLLM struct {
	Reply func(system, user string) (string, error)

	mu    sync.Mutex
	calls []Call
}

var _ types.Completer = (*FakeLLM)(nil)

// StaticLLM answers every call with text.
func StaticLLM(text string) *FakeLLM {
	return &FakeLLM{Reply: func(string, string) (string, error) { return text, nil }}
}

func (f *FakeLLM) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{System: system, User: user})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Reply == nil {
		return user, nil
	}
	return f.Reply(system, user)
}

func (f *FakeLLM) CompleteJSON(ctx context.Context, system, user string, v any) error {
	text, err := f.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(text, v)
}

// Calls returns a copy of the recorded calls in arrival order.
func (f *FakeLLM) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeLLM) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// CallsWith returns the calls whose system prompt contains s.
func (f *FakeLLM) CallsWith(s string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if strings.Contains(c.System, s) {
			out = append(out, c)
		}
	}
	return out
}

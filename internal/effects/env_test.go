package effects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/glyphoxa-chat/pkg/chattypes"
)

type fakeInferer struct {
	outcome chattypes.Outcome
	err     error
	calls   []chattypes.LLMInput
}

func (f *fakeInferer) Infer(ctx context.Context, input chattypes.LLMInput, history chattypes.History) (chattypes.Outcome, error) {
	f.calls = append(f.calls, input)
	return f.outcome, f.err
}

type fakeSender struct {
	err   error
	calls []string
}

func (f *fakeSender) Send(ctx context.Context, id string, text string) error {
	f.calls = append(f.calls, id+":"+text)
	return f.err
}

type fakeToolRunner struct {
	result string
	calls  []chattypes.ToolCall
}

func (f *fakeToolRunner) RunTool(ctx context.Context, call chattypes.ToolCall) string {
	f.calls = append(f.calls, call)
	return f.result
}

func TestEnv_Infer_Success(t *testing.T) {
	t.Parallel()
	want := chattypes.Outcome{Kind: chattypes.OutcomeFinal, Response: "hi"}
	inferer := &fakeInferer{outcome: want}
	env := New(inferer, &fakeSender{}, &fakeToolRunner{}, nil, nil)

	got, err := env.Infer(context.Background(), chattypes.LLMInput{Text: "hello"}, chattypes.History{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(inferer.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(inferer.calls))
	}
}

func TestEnv_Infer_Error(t *testing.T) {
	t.Parallel()
	inferer := &fakeInferer{err: errors.New("boom")}
	env := New(inferer, &fakeSender{}, &fakeToolRunner{}, nil, nil)

	_, err := env.Infer(context.Background(), chattypes.LLMInput{}, chattypes.History{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestEnv_Send(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	env := New(&fakeInferer{}, sender, &fakeToolRunner{}, nil, nil)

	if err := env.Send(context.Background(), "discord:123", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "discord:123:hello" {
		t.Errorf("unexpected calls: %v", sender.calls)
	}
}

func TestEnv_Send_Error(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{err: errors.New("unreachable")}
	env := New(&fakeInferer{}, sender, &fakeToolRunner{}, nil, nil)

	if err := env.Send(context.Background(), "id", "text"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestEnv_RunTool_NeverErrors(t *testing.T) {
	t.Parallel()
	runner := &fakeToolRunner{result: "42"}
	env := New(&fakeInferer{}, &fakeSender{}, runner, nil, nil)

	got := env.RunTool(context.Background(), chattypes.ToolCall{Kind: chattypes.ToolRollDice, Expression: "1d6"})
	if got != "42" {
		t.Errorf("got %q, want 42", got)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(runner.calls))
	}
}

func TestEnv_Now(t *testing.T) {
	t.Parallel()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env := New(&fakeInferer{}, &fakeSender{}, &fakeToolRunner{}, nil, nil)
	env.now = func() time.Time { return fixed }

	if got := env.Now(); !got.Equal(fixed) {
		t.Errorf("Now() = %v, want %v", got, fixed)
	}
}

package agent

import (
	"context"
	"errors"
	"testing"
)

func TestCascadeResolveByName(t *testing.T) {
	first := &fakeAgent{name: "claude", available: true}
	second := &fakeAgent{name: "anthropic", available: true}
	c := NewCascade(nil, first, second)

	got, err := c.Resolve(context.Background(), "anthropic")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != second {
		t.Errorf("resolved %s, want anthropic", got.Name())
	}
}

func TestCascadeAutoSkipsUnavailable(t *testing.T) {
	down := &fakeAgent{name: "claude", available: false}
	up := &fakeAgent{name: "anthropic", available: true}
	c := NewCascade(nil, down, up)

	got, err := c.Resolve(context.Background(), "auto")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != up {
		t.Errorf("resolved %s, want the available backend", got.Name())
	}
}

func TestCascadeEmptyNameCascades(t *testing.T) {
	up := &fakeAgent{name: "claude", available: true}
	c := NewCascade(nil, up)

	got, err := c.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != up {
		t.Errorf("resolved %s, want claude", got.Name())
	}
}

func TestCascadeNoAgentAvailable(t *testing.T) {
	c := NewCascade(nil, &fakeAgent{name: "claude", available: false})

	_, err := c.Resolve(context.Background(), "auto")
	if !errors.Is(err, ErrNoAgentAvailable) {
		t.Errorf("err = %v, want ErrNoAgentAvailable", err)
	}
}

func TestCascadeUnknownAgent(t *testing.T) {
	c := NewCascade(nil, &fakeAgent{name: "claude", available: true})

	_, err := c.Resolve(context.Background(), "gemini")
	if !errors.Is(err, ErrUnknownAgent) {
		t.Errorf("err = %v, want ErrUnknownAgent", err)
	}
}

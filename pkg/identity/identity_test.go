package identity

import (
	"context"
	"testing"
)

func TestUser(t *testing.T) {
	if got := User(context.Background()); got != "" {
		t.Errorf("User() = %q, want empty", got)
	}
	ctx := WithUser(context.Background(), "alice")
	if got := User(ctx); got != "alice" {
		t.Errorf("User() = %q, want %q", got, "alice")
	}
}

func TestContextProvider(t *testing.T) {
	p := ContextProvider{Default: "system"}

	if got := p.Creator(context.Background()); got != "system" {
		t.Errorf("Creator() = %q, want %q", got, "system")
	}
	if got := p.Creator(WithUser(context.Background(), "bob")); got != "bob" {
		t.Errorf("Creator() = %q, want %q", got, "bob")
	}
}

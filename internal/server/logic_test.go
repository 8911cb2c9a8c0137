package server_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/orreryhq/orrery/internal/server"
)

func TestLogicRegistryDefault(t *testing.T) {
	t.Parallel()

	r := server.NewLogicRegistry()

	fn, err := r.Get("")
	if err != nil {
		t.Fatalf("Get(\"\") error: %v", err)
	}
	res, err := fn(context.Background(), map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("echo logic error: %v", err)
	}
	if res.Structured["k"] != "v" {
		t.Errorf("echo did not reflect arguments: %+v", res.Structured)
	}
	if res.Text == "" {
		t.Error("echo produced empty text")
	}
}

func TestLogicRegistryUnknownHandler(t *testing.T) {
	t.Parallel()

	r := server.NewLogicRegistry()
	_, err := r.Get("missing")
	if err == nil {
		t.Fatal("Get(missing) succeeded")
	}
	// The error names the known handlers to make the descriptor typo obvious.
	if !strings.Contains(err.Error(), server.DefaultHandlerName) {
		t.Errorf("error %q does not list known handlers", err)
	}
}

func TestLogicRegistryRegisterAndReplace(t *testing.T) {
	t.Parallel()

	r := server.NewLogicRegistry()
	wantErr := errors.New("boom")
	r.Register("custom", func(context.Context, map[string]any) (*server.LogicResult, error) {
		return nil, wantErr
	})

	fn, err := r.Get("custom")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn(context.Background(), nil); !errors.Is(err, wantErr) {
		t.Errorf("handler error = %v, want %v", err, wantErr)
	}

	r.Register("custom", server.EchoLogic)
	fn, err = r.Get("custom")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn(context.Background(), nil); err != nil {
		t.Errorf("replaced handler error: %v", err)
	}
}

func TestEchoLogicNilArgs(t *testing.T) {
	t.Parallel()

	res, err := server.EchoLogic(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Structured == nil {
		t.Error("Structured should be an empty map, not nil")
	}
}

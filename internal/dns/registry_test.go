package dns

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
)

type nopProvider struct{}

func (nopProvider) Zone(context.Context) (Zone, error) { return Zone{}, nil }
func (nopProvider) List(context.Context, Zone, string, string) ([]Record, error) {
	return nil, nil
}
func (nopProvider) Create(context.Context, Zone, Record) error { return nil }
func (nopProvider) Delete(context.Context, Zone, Record) error { return nil }

func TestRegistry(t *testing.T) {
	var got map[string]string
	Register("test-nop", func(_ logr.Logger, settings map[string]string) (Provider, error) {
		got = settings
		return nopProvider{}, nil
	})

	p, err := NewProvider("test-nop", logr.Discard(), map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.(nopProvider); !ok {
		t.Errorf("expected nopProvider, got %T", p)
	}
	if got["k"] != "v" {
		t.Errorf("expected settings to be passed through, got %v", got)
	}

	if _, err := NewProvider("does-not-exist", logr.Discard(), nil); err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register("test-nop", nil)
}

package catalog

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	c, err := New(map[string]int64{"small": 15, "medium": 25, "large": 50})
	if err != nil {
		t.Fatalf("expected catalog to build, got %v", err)
	}

	credits, err := c.Lookup("medium")
	if err != nil {
		t.Fatalf("expected lookup to succeed, got %v", err)
	}
	if credits != 25 {
		t.Fatalf("expected 25 credits, got %d", credits)
	}

	if _, err := c.Lookup("enterprise"); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestNewRejectsInvalidRules(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty catalog")
	}
	if _, err := New(map[string]int64{"small": 0}); err == nil {
		t.Fatal("expected error for non-positive credit amount")
	}
	if _, err := New(map[string]int64{"": 10}); err == nil {
		t.Fatal("expected error for empty product id")
	}
}

package kb

import (
	"errors"
	"testing"

	"gateway/internal/gatewayerr"
)

func TestCatalogGetAndList(t *testing.T) {
	c := NewCatalog([]KnowledgeBase{
		{ID: "kb-1", Name: "Product Docs"},
		{ID: "kb-2", Name: "Support Tickets"},
	})

	got, err := c.Get("kb-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Product Docs" {
		t.Errorf("Name = %q, want %q", got.Name, "Product Docs")
	}

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(list))
	}
}

func TestCatalogGetUnknownID(t *testing.T) {
	c := NewCatalog(nil)
	_, err := c.Get("kb-missing")
	if err == nil {
		t.Fatal("expected an error for an unknown knowledge base id")
	}
	var gwErr *gatewayerr.Error
	if !errors.As(err, &gwErr) || gwErr.Kind != gatewayerr.KindFileNotFound {
		t.Errorf("error kind = %v, want %v", gwErr, gatewayerr.KindFileNotFound)
	}
}

func TestCatalogDelete(t *testing.T) {
	c := NewCatalog([]KnowledgeBase{{ID: "kb-1", Name: "Product Docs"}})
	if err := c.Delete("kb-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Get("kb-1"); err == nil {
		t.Error("expected Get to fail after Delete")
	}
	if err := c.Delete("kb-1"); err == nil {
		t.Error("expected an error deleting an already-deleted knowledge base")
	}
}

func TestNewCatalogEmpty(t *testing.T) {
	c := NewCatalog(nil)
	if got := c.List(); len(got) != 0 {
		t.Errorf("List() = %v, want empty", got)
	}
}

package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

func TestDefaultCatalogResolvesCredits25(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}

	pkg, ok := c.Resolve("credits-25")
	if !ok {
		t.Fatal("expected credits-25 to resolve")
	}
	if pkg.CreditAmount != 25 || pkg.PriceMinorUnits != 1299 || pkg.Currency != "EUR" {
		t.Fatalf("unexpected credits-25 package: %+v", pkg)
	}

	if _, ok := c.Resolve("nonexistent-package"); ok {
		t.Fatal("expected unknown package to be rejected")
	}
	if c.Version() == "" {
		t.Fatal("expected default catalog to carry a version")
	}
}

func TestNewRejectsInvalidPackages(t *testing.T) {
	valid := domain.CreditPackage{ID: "credits-10", CreditAmount: 10, PriceMinorUnits: 499, Currency: "EUR"}

	tests := []struct {
		name     string
		version  string
		packages []domain.CreditPackage
	}{
		{name: "missing version", version: "", packages: []domain.CreditPackage{valid}},
		{name: "no packages", version: "v1"},
		{name: "empty id", version: "v1", packages: []domain.CreditPackage{{CreditAmount: 1, PriceMinorUnits: 1, Currency: "EUR"}}},
		{name: "zero credits", version: "v1", packages: []domain.CreditPackage{{ID: "a", PriceMinorUnits: 1, Currency: "EUR"}}},
		{name: "negative price", version: "v1", packages: []domain.CreditPackage{{ID: "a", CreditAmount: 1, PriceMinorUnits: -1, Currency: "EUR"}}},
		{name: "other currency", version: "v1", packages: []domain.CreditPackage{{ID: "a", CreditAmount: 1, PriceMinorUnits: 1, Currency: "USD"}}},
		{name: "duplicate id", version: "v1", packages: []domain.CreditPackage{valid, valid}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.version, tt.packages)
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestNewNormalizesCurrencyAndName(t *testing.T) {
	c, err := New("v1", []domain.CreditPackage{{ID: " credits-5 ", CreditAmount: 5, PriceMinorUnits: 250, Currency: "eur"}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	pkg, ok := c.Resolve("credits-5")
	if !ok {
		t.Fatal("expected trimmed id to resolve")
	}
	if pkg.Currency != "EUR" {
		t.Fatalf("expected EUR, got %q", pkg.Currency)
	}
	if pkg.Name != "5 credits" {
		t.Fatalf("expected generated name, got %q", pkg.Name)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := []byte(`version: "test"
packages:
  - id: jam-jar
    name: Jam jar
    credit_amount: 3
    price_minor_units: 150
    currency: EUR
    provider_product_ref: price_123
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	pkgs := c.List()
	if len(pkgs) != 1 || pkgs[0].ProviderProductRef != "price_123" {
		t.Fatalf("unexpected packages: %+v", pkgs)
	}
}

func TestDisplayPrice(t *testing.T) {
	tests := map[int64]string{1299: "12.99", 499: "4.99", 100: "1.00", 5: "0.05"}
	for minor, want := range tests {
		if got := DisplayPrice(minor); got != want {
			t.Fatalf("DisplayPrice(%d): expected %q, got %q", minor, want, got)
		}
	}
}

/**
 * @description
 * Credit package catalog. The catalog is a versioned YAML document; the copy
 * loaded by this service is authoritative for both price and credit amount.
 */
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

// SupportedCurrency is the only currency packages may be priced in.
const SupportedCurrency = "EUR"

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid credit catalog")

// Catalog is an immutable, validated set of credit packages.
type Catalog struct {
	version  string
	packages []domain.CreditPackage
	byID     map[string]domain.CreditPackage
}

type catalogFile struct {
	Version  string                 `yaml:"version"`
	Packages []domain.CreditPackage `yaml:"packages"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return New(file.Version, file.Packages)
}

// New validates packages and builds a catalog.
func New(version string, packages []domain.CreditPackage) (*Catalog, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidCatalog)
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("%w: no packages defined", ErrInvalidCatalog)
	}

	c := &Catalog{
		version:  version,
		packages: make([]domain.CreditPackage, 0, len(packages)),
		byID:     make(map[string]domain.CreditPackage, len(packages)),
	}
	for i, pkg := range packages {
		pkg.ID = strings.TrimSpace(pkg.ID)
		pkg.Currency = strings.ToUpper(strings.TrimSpace(pkg.Currency))
		pkg.ProviderProductRef = strings.TrimSpace(pkg.ProviderProductRef)

		switch {
		case pkg.ID == "":
			return nil, fmt.Errorf("%w: package %d has no id", ErrInvalidCatalog, i)
		case pkg.CreditAmount <= 0:
			return nil, fmt.Errorf("%w: package %s must grant a positive credit amount", ErrInvalidCatalog, pkg.ID)
		case pkg.PriceMinorUnits <= 0:
			return nil, fmt.Errorf("%w: package %s must have a positive price", ErrInvalidCatalog, pkg.ID)
		case pkg.Currency != SupportedCurrency:
			return nil, fmt.Errorf("%w: package %s has unsupported currency %q", ErrInvalidCatalog, pkg.ID, pkg.Currency)
		}
		if _, dup := c.byID[pkg.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate package id %s", ErrInvalidCatalog, pkg.ID)
		}
		if pkg.Name == "" {
			pkg.Name = fmt.Sprintf("%d credits", pkg.CreditAmount)
		}

		c.byID[pkg.ID] = pkg
		c.packages = append(c.packages, pkg)
	}

	return c, nil
}

// Version identifies the catalog revision.
func (c *Catalog) Version() string {
	return c.version
}

// Resolve looks up a package by id.
func (c *Catalog) Resolve(packageID string) (domain.CreditPackage, bool) {
	pkg, ok := c.byID[strings.TrimSpace(packageID)]
	return pkg, ok
}

// List returns the packages in catalog order.
func (c *Catalog) List() []domain.CreditPackage {
	out := make([]domain.CreditPackage, len(c.packages))
	copy(out, c.packages)
	return out
}

// DisplayPrice formats minor units as a decimal amount, e.g. 1299 -> "12.99".
func DisplayPrice(minorUnits int64) string {
	return decimal.New(minorUnits, -2).StringFixed(2)
}

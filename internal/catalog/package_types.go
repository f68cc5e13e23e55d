// Package catalog holds the static lookups the production core consumes but
// never owns: package types and recipe metadata.
package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"brewery-production-backend/config"
	"brewery-production-backend/internal/apperr"
)

// PackageType is a canonical container definition.
type PackageType struct {
	Kind         string          `json:"kind"`
	Size         string          `json:"size"`
	Code         string          `json:"code"`
	VolumeLiters decimal.Decimal `json:"volumeLiters"`
}

// DefaultPackageTypes is the built-in (kind, size) table.
func DefaultPackageTypes() []PackageType {
	return []PackageType{
		{Kind: "KEG", Size: "1/2BBL", Code: "KEG_HALF", VolumeLiters: decimal.RequireFromString("58.67")},
		{Kind: "KEG", Size: "1/4BBL", Code: "KEG_QUARTER", VolumeLiters: decimal.RequireFromString("29.34")},
		{Kind: "KEG", Size: "1/6BBL", Code: "KEG_SIXTH", VolumeLiters: decimal.RequireFromString("19.55")},
		{Kind: "CAN", Size: "12OZ", Code: "CAN_12OZ", VolumeLiters: decimal.RequireFromString("0.355")},
		{Kind: "CAN", Size: "16OZ", Code: "CAN_16OZ", VolumeLiters: decimal.RequireFromString("0.473")},
		{Kind: "BOTTLE", Size: "12OZ", Code: "BTL_12OZ", VolumeLiters: decimal.RequireFromString("0.355")},
		{Kind: "BOTTLE", Size: "22OZ", Code: "BTL_22OZ", VolumeLiters: decimal.RequireFromString("0.650")},
	}
}

// PackageTypes resolves (kind, size) pairs to package types.
type PackageTypes struct {
	byKey map[string]PackageType
}

// NewPackageTypes starts from the defaults and applies configured entries,
// which replace a default with the same (kind, size) or add a new one.
func NewPackageTypes(overrides []config.PackageTypeConfig) *PackageTypes {
	p := &PackageTypes{byKey: make(map[string]PackageType)}
	for _, pt := range DefaultPackageTypes() {
		p.byKey[key(pt.Kind, pt.Size)] = pt
	}
	for _, o := range overrides {
		if o.Kind == "" || o.Size == "" || o.Code == "" {
			continue
		}
		p.byKey[key(o.Kind, o.Size)] = PackageType{
			Kind:         strings.ToUpper(o.Kind),
			Size:         strings.ToUpper(o.Size),
			Code:         o.Code,
			VolumeLiters: decimal.NewFromFloat(o.VolumeLiters),
		}
	}
	return p
}

// Lookup returns the package type for kind and size. Matching ignores case,
// spaces, dashes and underscores, so "can", "12 oz" finds CAN_12OZ.
func (p *PackageTypes) Lookup(kind, size string) (PackageType, error) {
	pt, ok := p.byKey[key(kind, size)]
	if !ok {
		return PackageType{}, apperr.ErrUnknownPackageType.WithParams(map[string]any{
			"kind": kind,
			"size": size,
		})
	}
	return pt, nil
}

// All returns every package type ordered by code.
func (p *PackageTypes) All() []PackageType {
	out := make([]PackageType, 0, len(p.byKey))
	for _, pt := range p.byKey {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

var keyCleaner = strings.NewReplacer(" ", "", "-", "", "_", "")

func key(kind, size string) string {
	return keyCleaner.Replace(strings.ToUpper(kind)) + "|" + keyCleaner.Replace(strings.ToUpper(size))
}

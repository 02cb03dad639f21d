package orders

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DocumentRequirement is one document the current stage demands before the
// order may advance.
type DocumentRequirement struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

const inspectionReportID = "inspection-report"

var oceanDocuments = []DocumentRequirement{
	{ID: "commercial-invoice", Label: "Commercial Invoice"},
	{ID: "bill-of-lading", Label: "Bill of Lading"},
	{ID: "packing-list", Label: "Packing List"},
}

var warehouseDocuments = []DocumentRequirement{
	{ID: "goods-received-note", Label: "Goods Received Note"},
	{ID: "customs-clearance", Label: "Customs Clearance"},
}

// RequiredDocuments resolves the document checklist for a stage from the
// order's lines. Pure: same stage and lines always yield the same list, in a
// stable order. Cancelled lines contribute nothing.
func RequiredDocuments(stage Status, lines []Line) []DocumentRequirement {
	switch stage {
	case StatusIssued:
		return piConfirmationRequirements(lines)
	case StatusManufacturing:
		return manufacturingRequirements(lines)
	case StatusOcean:
		return append([]DocumentRequirement(nil), oceanDocuments...)
	case StatusWarehouse:
		return append([]DocumentRequirement(nil), warehouseDocuments...)
	default:
		return nil
	}
}

// piConfirmationRequirements derives one requirement per distinct sanitized
// PI number. A PI that sanitizes to the empty string contributes nothing.
func piConfirmationRequirements(lines []Line) []DocumentRequirement {
	seen := make(map[string]struct{})
	var ids []string
	for i := range lines {
		if !lines[i].Active() {
			continue
		}
		pi := SanitizePINumber(lines[i].PINumber)
		if pi == "" {
			continue
		}
		if _, ok := seen[pi]; ok {
			continue
		}
		seen[pi] = struct{}{}
		ids = append(ids, pi)
	}
	sort.Strings(ids)
	out := make([]DocumentRequirement, 0, len(ids))
	for _, pi := range ids {
		out = append(out, DocumentRequirement{
			ID:    "pi-confirmation-" + pi,
			Label: "PI Confirmation " + pi,
		})
	}
	return out
}

// manufacturingRequirements demands one artwork per distinct SKU plus the
// fixed inspection report.
func manufacturingRequirements(lines []Line) []DocumentRequirement {
	seen := make(map[string]struct{})
	var slugs []string
	for i := range lines {
		if !lines[i].Active() {
			continue
		}
		slug := slugifySKU(lines[i].SKUCode)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	out := make([]DocumentRequirement, 0, len(slugs)+1)
	for _, slug := range slugs {
		out = append(out, DocumentRequirement{
			ID:    "artwork-" + slug,
			Label: "Artwork " + slug,
		})
	}
	out = append(out, DocumentRequirement{ID: inspectionReportID, Label: "Inspection Report"})
	return out
}

// SanitizePINumber uppercases the PI reference and strips every character
// outside [A-Z0-9-].
func SanitizePINumber(pi string) string {
	upper := strings.ToUpper(strings.TrimSpace(pi))
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// slugifySKU lowercases the SKU code, folds diacritics, and collapses every
// run of non-alphanumerics into a single hyphen.
func slugifySKU(code string) string {
	folded, _, err := transform.String(diacriticStripper, code)
	if err != nil {
		folded = code
	}
	lower := strings.ToLower(folded)
	var b strings.Builder
	b.Grow(len(lower))
	lastHyphen := true
	for _, r := range lower {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

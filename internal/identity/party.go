package identity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	PartyGreens      = "Bündnis 90/Die Grünen"
	PartyLeft        = "DIE LINKE"
	PartyIndependent = "Unabhängig / Parteilos"
)

// Aliases maps a raw party label, as printed in member tables, to its canonical name.
type Aliases map[string]string

var defaultAliases = Aliases{
	"CDU/CSU (CDU)": "CDU",
	"CSU (GDP)":     "CSU",
	"CDU/CSU (CSU)": "CSU",

	"SPD (GDP)": "SPD",

	"Die Grünen": PartyGreens,
	"GRÜNE":      PartyGreens,
	"Grüne":      PartyGreens,
	"Bündnis 90": PartyGreens,
	"Grüne DDR":  PartyGreens,

	"AfD (parteilos)":   "AfD",
	"fraktionslos(AfD)": "AfD",

	"Die Linke": PartyLeft,
	"Linke":     PartyLeft,
	"PDS":       PartyLeft,

	"parteilos":                 PartyIndependent,
	"unabhängig":                PartyIndependent,
	"fraktionslos":              PartyIndependent,
	"fraktionslos (Die PARTEI)": PartyIndependent,
	"fraktionslos (LKR)":        PartyIndependent,
	"fraktionslos(SSW)":         PartyIndependent,

	"BSW": "BSW",
}

// DefaultAliases returns a copy of the built-in alias table.
func DefaultAliases() Aliases {
	return defaultAliases.Merge(nil)
}

// NormalizeParty canonicalizes raw with the built-in table. See Aliases.Normalize.
func NormalizeParty(raw string) string {
	return defaultAliases.Normalize(raw)
}

// Normalize trims raw and maps it through the table. Unknown labels pass through trimmed;
// blank input yields "" (no party).
func (a Aliases) Normalize(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return ""
	}
	if canonical, ok := a[cleaned]; ok {
		return canonical
	}
	return cleaned
}

// Merge returns a new table holding a's entries overridden by other's.
func (a Aliases) Merge(other Aliases) Aliases {
	out := make(Aliases, len(a)+len(other))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range other {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// LoadAliasesFile reads a YAML mapping of raw label to canonical name and layers it over
// the built-in table. An empty path returns the built-in table.
func LoadAliasesFile(path string) (Aliases, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultAliases(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read aliases: %w", err)
	}
	var extra Aliases
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, fmt.Errorf("identity: parse aliases %s: %w", path, err)
	}
	return defaultAliases.Merge(extra), nil
}

package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMandateIDStable(t *testing.T) {
	a := MandateID("20", "https://x/person-a")
	b := MandateID("20", "https://x/person-a")
	if a != b {
		t.Fatalf("MandateID not stable: %q vs %q", a, b)
	}
	if want := "6c83c4f6954299c9bb928270c9f54c72c342cc43"; a != want {
		t.Fatalf("MandateID: want=%q got=%q", want, a)
	}
	if a == MandateID("19", "https://x/person-a") {
		t.Fatalf("MandateID must differ across periods")
	}
	if a == MandateID("20", "https://x/person-b") {
		t.Fatalf("MandateID must differ across politicians")
	}
}

func TestKnownDigests(t *testing.T) {
	if got, want := MandateID("20", "https://d/a"), "29ebbabc1c5de510a10c0aa540b8ada1873e6555"; got != want {
		t.Fatalf("MandateID: want=%q got=%q", want, got)
	}
	if got, want := ContentID("https://d/a", "Leben"), "17759348ffabd4200c331fbe51e8f7c8d6b37cf0"; got != want {
		t.Fatalf("ContentID: want=%q got=%q", want, got)
	}
}

func TestContentIDSeparatesFields(t *testing.T) {
	if ContentID("https://d/a", "Leben") == ContentID("https://d/a", "Politik") {
		t.Fatalf("ContentID must differ across headers")
	}
	if ContentID("https://d/a", "#") != ContentID("https://d/a", "#") {
		t.Fatalf("ContentID not stable")
	}
}

func TestNormalizeParty(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Die Grünen", PartyGreens},
		{"GRÜNE", PartyGreens},
		{"  Grüne  ", PartyGreens},
		{"CDU/CSU (CSU)", "CSU"},
		{"PDS", PartyLeft},
		{"fraktionslos(SSW)", PartyIndependent},
		{"XYZ", "XYZ"},
		{" FDP ", "FDP"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeParty(tc.raw); got != tc.want {
			t.Fatalf("NormalizeParty(%q): want=%q got=%q", tc.raw, tc.want, got)
		}
	}
	if NormalizeParty("Die Grünen") != NormalizeParty("GRÜNE") {
		t.Fatalf("Grünen aliases must agree")
	}
}

func TestMergeDoesNotMutateDefaults(t *testing.T) {
	merged := DefaultAliases().Merge(Aliases{"GRÜNE": "Greens", "DP": "Deutsche Partei", " ": "x"})
	if merged.Normalize("GRÜNE") != "Greens" {
		t.Fatalf("merged override: got=%q", merged.Normalize("GRÜNE"))
	}
	if NormalizeParty("GRÜNE") != PartyGreens {
		t.Fatalf("default table mutated: got=%q", NormalizeParty("GRÜNE"))
	}
	if _, ok := merged[" "]; ok {
		t.Fatalf("blank keys must be dropped")
	}
}

func TestLoadAliasesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	body := "\"DP\": \"Deutsche Partei\"\n\"Linke\": \"Die Linke (alt)\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	aliases, err := LoadAliasesFile(path)
	if err != nil {
		t.Fatalf("LoadAliasesFile: %v", err)
	}
	if got := aliases.Normalize("DP"); got != "Deutsche Partei" {
		t.Fatalf("DP: want=%q got=%q", "Deutsche Partei", got)
	}
	if got := aliases.Normalize("Linke"); got != "Die Linke (alt)" {
		t.Fatalf("Linke: want=%q got=%q", "Die Linke (alt)", got)
	}
	if got := aliases.Normalize("GRÜNE"); got != PartyGreens {
		t.Fatalf("built-in entries kept: got=%q", got)
	}

	if _, err := LoadAliasesFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("LoadAliasesFile: expected error for missing file")
	}
	def, err := LoadAliasesFile("")
	if err != nil || def.Normalize("PDS") != PartyLeft {
		t.Fatalf("LoadAliasesFile(\"\"): err=%v", err)
	}
}

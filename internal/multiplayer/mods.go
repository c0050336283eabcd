package multiplayer

import "fmt"

// Mod is a gameplay modifier identified by its acronym.
type Mod struct {
	Acronym string `json:"acronym"`
}

// Ruleset ids recognised by the server.
const (
	RulesetCircles int16 = 0
	RulesetDrums   int16 = 1
	RulesetFruits  int16 = 2
	RulesetKeys    int16 = 3

	MaxRulesetID int16 = RulesetKeys
)

// Mods legal in every ruleset.
var commonMods = []string{"EZ", "NF", "HT", "HR", "SD", "PF", "DT", "NC", "HD", "FL"}

// Mods legal only in specific rulesets.
var rulesetMods = map[int16][]string{
	RulesetCircles: {"TD", "SO"},
	RulesetDrums:   {},
	RulesetFruits:  {},
	RulesetKeys:    {"4K", "5K", "6K", "7K", "8K", "9K", "MR", "FI"},
}

// ValidRuleset reports whether the ruleset id is in range.
func ValidRuleset(rulesetID int16) bool {
	return rulesetID >= 0 && rulesetID <= MaxRulesetID
}

// ValidateMods checks that every mod in required and allowed is legal for the
// ruleset and that the two sets are disjoint.
func ValidateMods(rulesetID int16, required, allowed []Mod) error {
	if !ValidRuleset(rulesetID) {
		return fmt.Errorf("ruleset %d out of range", rulesetID)
	}

	legal := make(map[string]struct{}, len(commonMods)+len(rulesetMods[rulesetID]))
	for _, m := range commonMods {
		legal[m] = struct{}{}
	}
	for _, m := range rulesetMods[rulesetID] {
		legal[m] = struct{}{}
	}

	seen := make(map[string]struct{}, len(required))
	for _, m := range required {
		if _, ok := legal[m.Acronym]; !ok {
			return fmt.Errorf("mod %s is not valid for ruleset %d", m.Acronym, rulesetID)
		}
		seen[m.Acronym] = struct{}{}
	}
	for _, m := range allowed {
		if _, ok := legal[m.Acronym]; !ok {
			return fmt.Errorf("mod %s is not valid for ruleset %d", m.Acronym, rulesetID)
		}
		if _, ok := seen[m.Acronym]; ok {
			return fmt.Errorf("mod %s cannot be both required and allowed", m.Acronym)
		}
	}
	return nil
}

// modsEqual compares two mod sets ignoring order.
func modsEqual(a, b []Mod) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, m := range a {
		set[m.Acronym]++
	}
	for _, m := range b {
		set[m.Acronym]--
		if set[m.Acronym] < 0 {
			return false
		}
	}
	return true
}

func modAcronyms(mods []Mod) []string {
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.Acronym)
	}
	return out
}

func modsFromAcronyms(acronyms []string) []Mod {
	out := make([]Mod, 0, len(acronyms))
	for _, a := range acronyms {
		out = append(out, Mod{Acronym: a})
	}
	return out
}

package extract

// Tier is the rule-based confidence grade of a danger mention.
type Tier string

const (
	TierHigh Tier = "high"
	TierLow  Tier = "low"
)

// dangerRule matches a danger indicator by word stem. Stems are given in
// Ukrainian and compared against normalized token prefixes, so inflected
// forms ("обстріли", "обстрілу") hit the same rule.
type dangerRule struct {
	id   string
	stem string
	tier Tier
}

// dangerRules is the danger lexicon. High-tier rules cover direct strike and
// casualty vocabulary; low-tier rules cover alerts and indirect indicators.
var dangerRules = []dangerRule{
	{id: "shelling", stem: "обстріл", tier: TierHigh},
	{id: "explosion", stem: "вибух", tier: TierHigh},
	{id: "missile", stem: "ракет", tier: TierHigh},
	{id: "artillery", stem: "артилер", tier: TierHigh},
	{id: "mortar", stem: "мінометн", tier: TierHigh},
	{id: "sniper", stem: "снайперськ", tier: TierHigh},
	{id: "nuclear", stem: "ядерн", tier: TierHigh},
	{id: "radiation", stem: "радіац", tier: TierHigh},
	{id: "chemical", stem: "хімічн", tier: TierHigh},
	{id: "biological", stem: "біологічн", tier: TierHigh},
	{id: "casualties", stem: "жертв", tier: TierHigh},
	{id: "casualties", stem: "загибл", tier: TierHigh},
	{id: "injured", stem: "постраждал", tier: TierHigh},
	{id: "threat", stem: "загроз", tier: TierLow},
	{id: "danger", stem: "небезпек", tier: TierLow},
	{id: "alert", stem: "тривог", tier: TierLow},
	{id: "siren", stem: "сирен", tier: TierLow},
	{id: "evacuation", stem: "евакуац", tier: TierLow},
	{id: "mined", stem: "замінован", tier: TierLow},
	{id: "suspicious", stem: "підозріл", tier: TierLow},
	{id: "fire", stem: "пожеж", tier: TierLow},
	{id: "destruction", stem: "руйнув", tier: TierLow},
	{id: "accident", stem: "авар", tier: TierLow},
}

// compiledRule carries the normalized stem used for matching.
type compiledRule struct {
	dangerRule
	normStem string
}

func compileRules() []compiledRule {
	out := make([]compiledRule, 0, len(dangerRules))
	for _, r := range dangerRules {
		out = append(out, compiledRule{dangerRule: r, normStem: Normalize(r.stem)})
	}
	return out
}

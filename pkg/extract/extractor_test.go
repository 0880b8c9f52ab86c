package extract

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Київ", "kyiv"},
		{"КИЇВ", "kyiv"},
		{"Харків", "kharkiv"},
		{"Запоріжжя", "zaporizhzhia"},
		{"Слов'янськ", "sloviansk"},
		{"Слов’янськ", "sloviansk"},
		{"Kyiv", "kyiv"},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractEmptyText(t *testing.T) {
	e := New()
	for _, text := range []string{"", "   ", "\n\t"} {
		locs, danger := e.Extract(text)
		if len(locs) != 0 || len(danger) != 0 {
			t.Errorf("Extract(%q) = %d locations, %d danger mentions, want none",
				text, len(locs), len(danger))
		}
	}
}

func TestExtractDeterministic(t *testing.T) {
	e := New()
	text := "Вибухи у Харків та Одеса, обстріл біля 50.4501, 30.5234. Тривога!"
	locs1, danger1 := e.Extract(text)
	locs2, danger2 := e.Extract(text)
	if !reflect.DeepEqual(locs1, locs2) {
		t.Errorf("locations differ between runs: %v vs %v", locs1, locs2)
	}
	if !reflect.DeepEqual(danger1, danger2) {
		t.Errorf("danger mentions differ between runs: %v vs %v", danger1, danger2)
	}
}

func TestExtractGazetteerMatch(t *testing.T) {
	e := New()
	locs, _ := e.Extract("Ситуація у місті спокійна. Харків тримається.")
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1: %v", len(locs), locs)
	}
	if locs[0].Raw != "Харків" || locs[0].Normalized != "kharkiv" {
		t.Errorf("got %+v, want raw Харків / normalized kharkiv", locs[0])
	}
	if locs[0].Coords != nil {
		t.Errorf("gazetteer match carries coordinates: %+v", locs[0].Coords)
	}
}

func TestExtractLongestMatchWins(t *testing.T) {
	e := New()
	locs, _ := e.Extract("Київська область без світла")
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1: %v", len(locs), locs)
	}
	if locs[0].Normalized != "kyivska oblast" {
		t.Errorf("got normalized %q, want %q", locs[0].Normalized, "kyivska oblast")
	}
}

func TestExtractStreetHeuristic(t *testing.T) {
	e := New()
	locs, _ := e.Extract("Пожежа на вул. Хрещатик сьогодні вранці")
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1: %v", len(locs), locs)
	}
	if !strings.HasPrefix(locs[0].Raw, "вул. Хрещатик") {
		t.Errorf("got raw %q, want prefix %q", locs[0].Raw, "вул. Хрещатик")
	}
}

func TestExtractStreetAbsorbsCityQualifier(t *testing.T) {
	e := New()
	locs, _ := e.Extract("Загроза поблизу вул. Хрещатик, Київ")
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1: %v", len(locs), locs)
	}
	if locs[0].Raw != "вул. Хрещатик, Київ" {
		t.Errorf("got raw %q, want %q", locs[0].Raw, "вул. Хрещатик, Київ")
	}
	if locs[0].Normalized != "vul khreshchatyk kyiv" {
		t.Errorf("got normalized %q, want %q", locs[0].Normalized, "vul khreshchatyk kyiv")
	}
}

func TestExtractBareKeywordIsNotACandidate(t *testing.T) {
	e := New()
	locs, _ := e.Extract("вул.")
	if len(locs) != 0 {
		t.Errorf("got %v, want no candidates for a bare keyword", locs)
	}
}

func TestExtractCoordinates(t *testing.T) {
	e := New()
	locs, _ := e.Extract("Влучання за координатами 50.4501, 30.5234")
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1: %v", len(locs), locs)
	}
	got := locs[0]
	if got.Coords == nil {
		t.Fatal("coordinate literal has nil Coords")
	}
	if got.Coords.Lat != 50.4501 || got.Coords.Lng != 30.5234 {
		t.Errorf("got coords %+v, want 50.4501, 30.5234", got.Coords)
	}
	if got.Normalized != "50.450100,30.523400" {
		t.Errorf("got normalized %q, want %q", got.Normalized, "50.450100,30.523400")
	}
}

func TestExtractRejectsOutOfRangeCoordinates(t *testing.T) {
	e := New()
	locs, _ := e.Extract("версія 123.5, 200.7 вийшла")
	if len(locs) != 0 {
		t.Errorf("got %v, want out-of-range pair ignored", locs)
	}
}

func TestExtractDeduplicatesByNormalizedKey(t *testing.T) {
	e := New()
	locs, _ := e.Extract("Київ під тривогою. КИЇВ тримається.")
	if len(locs) != 1 {
		t.Fatalf("got %d locations, want 1: %v", len(locs), locs)
	}
	if locs[0].Raw != "Київ" {
		t.Errorf("got raw %q, want first occurrence %q", locs[0].Raw, "Київ")
	}
}

func TestExtractDangerTiers(t *testing.T) {
	e := New()
	_, danger := e.Extract("Обстріл тривав годину, оголошено тривогу")
	if len(danger) != 2 {
		t.Fatalf("got %d danger mentions, want 2: %v", len(danger), danger)
	}
	byRule := map[string]DangerCandidate{}
	for _, d := range danger {
		byRule[d.RuleID] = d
	}
	if d, ok := byRule["shelling"]; !ok || d.Tier != TierHigh {
		t.Errorf("shelling: got %+v, want high tier", d)
	}
	if d, ok := byRule["alert"]; !ok || d.Tier != TierLow {
		t.Errorf("alert: got %+v, want low tier", d)
	}
}

func TestExtractDangerRuleMatchesOnce(t *testing.T) {
	e := New()
	_, danger := e.Extract("Вибух! Ще один вибух. І знову вибухи.")
	if len(danger) != 1 {
		t.Fatalf("got %d danger mentions, want 1: %v", len(danger), danger)
	}
	if danger[0].RuleID != "explosion" {
		t.Errorf("got rule %q, want explosion", danger[0].RuleID)
	}
	if danger[0].Snippet != "Вибух" {
		t.Errorf("got snippet %q, want %q", danger[0].Snippet, "Вибух")
	}
}

func TestExtractDangerStemMatchesInflectedForms(t *testing.T) {
	e := New()
	for _, word := range []string{"обстріл", "обстріли", "обстрілу", "Обстрілами"} {
		_, danger := e.Extract("Повідомляють про " + word + " міста")
		if len(danger) != 1 || danger[0].RuleID != "shelling" {
			t.Errorf("Extract(%q) danger = %v, want one shelling mention", word, danger)
		}
	}
}

func TestExtractDangerSnippetStopsAtBoundary(t *testing.T) {
	e := New()
	_, danger := e.Extract("Сирени лунають, залишайтеся в укритті")
	if len(danger) != 1 {
		t.Fatalf("got %d danger mentions, want 1: %v", len(danger), danger)
	}
	if danger[0].Snippet != "Сирени лунають" {
		t.Errorf("got snippet %q, want %q", danger[0].Snippet, "Сирени лунають")
	}
}

func TestExtractCombined(t *testing.T) {
	e := New()
	locs, danger := e.Extract("Вибухи у Маріуполь, сирени по всій Донецька область")
	if len(locs) != 2 {
		t.Fatalf("got %d locations, want 2: %v", len(locs), locs)
	}
	if locs[0].Normalized != "mariupol" {
		t.Errorf("got first location %q, want mariupol", locs[0].Normalized)
	}
	if locs[1].Normalized != "donetska oblast" {
		t.Errorf("got second location %q, want donetska oblast", locs[1].Normalized)
	}
	if len(danger) != 2 {
		t.Errorf("got %d danger mentions, want explosion and siren: %v", len(danger), danger)
	}
}

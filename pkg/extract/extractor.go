package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Coordinates is a raw latitude/longitude pair found directly in text.
type Coordinates struct {
	Lat float64
	Lng float64
}

// LocationCandidate is a possible location mention. Raw preserves the
// original substring for display; Normalized is the canonical key used for
// caching and lookups. Coords is set for coordinate literals, which need no
// provider call to resolve.
type LocationCandidate struct {
	Raw        string
	Normalized string
	Coords     *Coordinates
}

// DangerCandidate is a danger indicator matched by a lexicon rule.
type DangerCandidate struct {
	RuleID  string
	Snippet string
	Tier    Tier
}

const (
	streetMaxTokens  = 3
	snippetMaxTokens = 8
)

var coordPattern = regexp.MustCompile(`(\d{1,3}\.\d+)[,\s]\s*(\d{1,3}\.\d+)`)

// Extractor finds location and danger candidates in Ukrainian free text.
// It is pure: Extract has no side effects and is deterministic for a given
// input.
type Extractor struct {
	gaz   *gazetteer
	rules []compiledRule
}

func New() *Extractor {
	return &Extractor{gaz: newGazetteer(), rules: compileRules()}
}

type span struct {
	start  int
	end    int
	coords *Coordinates
}

// Extract returns the location and danger candidates found in text.
// Overlapping location matches are resolved longest-match-first, so a
// contained sub-match is never reported separately. Empty or non-matching
// text yields empty results, not an error.
func (e *Extractor) Extract(text string) ([]LocationCandidate, []DangerCandidate) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	tokens := tokenize(text)

	var spans []span
	for _, m := range coordPattern.FindAllStringSubmatchIndex(text, -1) {
		lat, errLat := strconv.ParseFloat(text[m[2]:m[3]], 64)
		lng, errLng := strconv.ParseFloat(text[m[4]:m[5]], 64)
		if errLat != nil || errLng != nil || lat > 90 || lng > 180 {
			continue
		}
		spans = append(spans, span{start: m[0], end: m[1], coords: &Coordinates{Lat: lat, Lng: lng}})
	}

	for i := range tokens {
		if n := e.gaz.matchAt(text, tokens, i); n > 0 {
			spans = append(spans, span{start: tokens[i].start, end: tokens[i+n-1].end})
		}
		if e.gaz.isKeyword(tokens[i].norm) {
			if s, ok := e.streetSpan(text, tokens, i); ok {
				spans = append(spans, s)
			}
		}
	}

	var locs []LocationCandidate
	seen := make(map[string]struct{})
	for _, s := range resolveOverlaps(spans) {
		raw := text[s.start:s.end]
		var key string
		if s.coords != nil {
			key = fmt.Sprintf("%.6f,%.6f", s.coords.Lat, s.coords.Lng)
		} else {
			key = normalizeKey(raw)
		}
		// Duplicate keys within one message keep the first occurrence.
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		locs = append(locs, LocationCandidate{Raw: raw, Normalized: key, Coords: s.coords})
	}

	return locs, e.extractDanger(text, tokens)
}

// streetSpan builds a candidate from a location keyword ("вул.", "проспект",
// "місто", ...) and the tokens that follow it, up to a punctuation boundary
// or streetMaxTokens. An abbreviation dot right after the keyword is not a
// boundary. When the span stops at a lone comma and a gazetteer entry
// follows, the entry is absorbed, so "вул. Хрещатик, Київ" is one candidate.
func (e *Extractor) streetSpan(text string, tokens []token, i int) (span, bool) {
	last := i
	for j := i + 1; j < len(tokens) && j <= i+streetMaxTokens; j++ {
		if boundaryBetween(text, tokens[j-1].end, tokens[j].start, j == i+1) {
			break
		}
		last = j
	}
	if last == i {
		return span{}, false
	}
	end := tokens[last].end
	if next := last + 1; next < len(tokens) && commaOnlyBetween(text, tokens[last].end, tokens[next].start) {
		if n := e.gaz.matchAt(text, tokens, next); n > 0 {
			end = tokens[next+n-1].end
		}
	}
	return span{start: tokens[i].start, end: end}, true
}

func (e *Extractor) extractDanger(text string, tokens []token) []DangerCandidate {
	var out []DangerCandidate
	seen := make(map[string]struct{})
	for i, tok := range tokens {
		for _, r := range e.rules {
			if !strings.HasPrefix(tok.norm, r.normStem) {
				continue
			}
			if _, dup := seen[r.id]; dup {
				break
			}
			seen[r.id] = struct{}{}
			end := tok.end
			for j := i + 1; j < len(tokens) && j <= i+snippetMaxTokens; j++ {
				if boundaryBetween(text, tokens[j-1].end, tokens[j].start, false) {
					break
				}
				end = tokens[j].end
			}
			out = append(out, DangerCandidate{RuleID: r.id, Snippet: text[tok.start:end], Tier: r.tier})
			break
		}
	}
	return out
}

// resolveOverlaps picks a non-overlapping subset of spans, preferring longer
// matches, and returns them in text order.
func resolveOverlaps(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		li, lj := spans[i].end-spans[i].start, spans[j].end-spans[j].start
		if li != lj {
			return li > lj
		}
		return spans[i].start < spans[j].start
	})
	var chosen []span
	for _, s := range spans {
		overlaps := false
		for _, c := range chosen {
			if s.start < c.end && c.start < s.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			chosen = append(chosen, s)
		}
	}
	sort.Slice(chosen, func(i, j int) bool { return chosen[i].start < chosen[j].start })
	return chosen
}

// normalizeKey joins the normalized tokens of a raw candidate with single
// spaces, giving a whitespace- and punctuation-insensitive key.
func normalizeKey(raw string) string {
	toks := tokenize(raw)
	parts := make([]string, 0, len(toks))
	for _, t := range toks {
		parts = append(parts, t.norm)
	}
	return strings.Join(parts, " ")
}

package extract

// gazetteerPlaces lists known toponyms in canonical Ukrainian spelling:
// oblast capitals, oblasts, frequently shelled cities and towns, and a few
// well-known Kyiv districts and streets. Multi-word entries match as whole
// token sequences. The table is data, not code: extend it without touching
// the matcher.
var gazetteerPlaces = []string{
	"Київ", "Київська область",
	"Харків", "Харківська область",
	"Одеса", "Одеська область",
	"Львів", "Львівська область",
	"Дніпро", "Дніпропетровська область",
	"Запоріжжя", "Запорізька область",
	"Миколаїв", "Миколаївська область",
	"Херсон", "Херсонська область",
	"Чернігів", "Чернігівська область",
	"Суми", "Сумська область",
	"Полтава", "Полтавська область",
	"Вінниця", "Вінницька область",
	"Житомир", "Житомирська область",
	"Черкаси", "Черкаська область",
	"Кропивницький", "Кіровоградська область",
	"Донецьк", "Донецька область",
	"Луганськ", "Луганська область",
	"Ужгород", "Закарпатська область",
	"Івано-Франківськ", "Івано-Франківська область",
	"Тернопіль", "Тернопільська область",
	"Хмельницький", "Хмельницька область",
	"Рівне", "Рівненська область",
	"Луцьк", "Волинська область",
	"Чернівці", "Чернівецька область",
	"Кривий Ріг", "Маріуполь", "Сєвєродонецьк", "Краматорськ",
	"Слов'янськ", "Бахмут", "Авдіївка", "Енергодар", "Нікополь",
	"Бровари", "Ірпінь", "Буча", "Гостомель", "Васильків", "Бориспіль",
	"Хрещатик", "Оболонь", "Позняки", "Троєщина", "Дарниця", "Печерськ",
}

// streetKeywords trigger the street-pattern heuristic: the keyword plus the
// following tokens up to a punctuation boundary form one candidate.
// Abbreviated forms cover the usual "вул."/"просп." spellings.
var streetKeywords = []string{
	"вулиця", "вул", "проспект", "просп", "бульвар", "бульв",
	"площа", "пл", "провулок", "пров", "шосе", "траса", "автомагістраль",
	"набережна", "узвіз", "міст", "станція", "зупинка", "метро",
	"аеропорт", "вокзал", "порт", "район", "мікрорайон",
	"місто", "село", "селище", "смт", "перехрестя",
}

// gazetteer is the compiled lookup structure: normalized token sequences
// indexed by their first token, longest sequences first.
type gazetteer struct {
	entries  map[string][][]string
	keywords map[string]struct{}
}

func newGazetteer() *gazetteer {
	g := &gazetteer{
		entries:  make(map[string][][]string),
		keywords: make(map[string]struct{}),
	}
	for _, place := range gazetteerPlaces {
		var seq []string
		for _, t := range tokenize(place) {
			seq = append(seq, t.norm)
		}
		if len(seq) == 0 {
			continue
		}
		head := seq[0]
		g.entries[head] = append(g.entries[head], seq)
	}
	// Longest sequence first so the matcher can stop at the first hit.
	for _, seqs := range g.entries {
		sortByLenDesc(seqs)
	}
	for _, kw := range streetKeywords {
		g.keywords[Normalize(kw)] = struct{}{}
	}
	return g
}

func sortByLenDesc(seqs [][]string) {
	for i := 1; i < len(seqs); i++ {
		for j := i; j > 0 && len(seqs[j]) > len(seqs[j-1]); j-- {
			seqs[j], seqs[j-1] = seqs[j-1], seqs[j]
		}
	}
}

// matchAt returns the length in tokens of the longest gazetteer entry
// starting at tokens[i], or 0 when nothing matches. Consecutive entry tokens
// must not be separated by boundary punctuation in the source text.
func (g *gazetteer) matchAt(text string, tokens []token, i int) int {
	seqs, ok := g.entries[tokens[i].norm]
	if !ok {
		return 0
	}
outer:
	for _, seq := range seqs {
		if i+len(seq) > len(tokens) {
			continue
		}
		for j := 1; j < len(seq); j++ {
			if tokens[i+j].norm != seq[j] {
				continue outer
			}
			if boundaryBetween(text, tokens[i+j-1].end, tokens[i+j].start, false) {
				continue outer
			}
		}
		return len(seq)
	}
	return 0
}

func (g *gazetteer) isKeyword(norm string) bool {
	_, ok := g.keywords[norm]
	return ok
}

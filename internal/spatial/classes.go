package spatial

import "strings"

// Synonyms maps a spoken object name to the detector class names it may refer to.
type Synonyms map[string][]string

var DefaultSynonyms = Synonyms{
	"celular":    {"cell phone"},
	"telefone":   {"cell phone"},
	"phone":      {"cell phone"},
	"mesa":       {"table", "desk", "dining table"},
	"table":      {"table", "desk", "dining table"},
	"cadeira":    {"chair"},
	"garrafa":    {"bottle"},
	"copo":       {"cup", "wine glass"},
	"xicara":     {"cup"},
	"pessoa":     {"person"},
	"cama":       {"bed"},
	"sofa":       {"couch"},
	"notebook":   {"laptop"},
	"computador": {"laptop", "tv"},
	"livro":      {"book"},
	"mochila":    {"backpack"},
	"chave":      {"scissors", "knife"},
	"faca":       {"knife"},
	"tesoura":    {"scissors"},
	"relogio":    {"clock"},
	"carro":      {"car"},
	"cachorro":   {"dog"},
	"gato":       {"cat"},
	"porta":      {"door"},
}

var SurfaceClasses = []string{"table", "desk", "dining table", "bench", "bed"}

// Resolve returns the target class names for query, falling back to the
// lowercased query itself.
func (s Synonyms) Resolve(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if targets, ok := s[q]; ok {
		return targets
	}
	return []string{q}
}

// ClassTable maps detector class ids to names.
type ClassTable []string

// Name resolves a class id through the table, falling back to the name the
// detector attached to the detection.
func (t ClassTable) Name(classID int, fallback string) string {
	if classID >= 0 && classID < len(t) {
		return t[classID]
	}
	return fallback
}

// Package vocab holds the fixed class vocabulary of the vegetable model.
package vocab

// DefaultSymbol is shown for any label without an entry in the symbol table.
const DefaultSymbol = "🥬"

// labels is ordered by model output index. Reordering breaks the contract
// with the trained artifact.
var labels = [...]string{
	"Bean",
	"Bitter_Gourd",
	"Bottle_Gourd",
	"Brinjal",
	"Broccoli",
	"Cabbage",
	"Capsicum",
	"Carrot",
	"Cauliflower",
	"Cucumber",
	"Papaya",
	"Potato",
	"Pumpkin",
	"Radish",
	"Tomato",
}

var symbols = map[string]string{
	"Bean":         "🫘",
	"Bitter_Gourd": "🥒",
	"Bottle_Gourd": "🍈",
	"Brinjal":      "🍆",
	"Broccoli":     "🥦",
	"Cabbage":      "🥬",
	"Capsicum":     "🫑",
	"Carrot":       "🥕",
	"Cauliflower":  "🥦",
	"Cucumber":     "🥒",
	"Papaya":       "🍈",
	"Potato":       "🥔",
	"Pumpkin":      "🎃",
	"Radish":       "🌰",
	"Tomato":       "🍅",
}

// Size is the number of classes the model outputs.
const Size = len(labels)

// Class is a vocabulary entry as exposed to clients.
type Class struct {
	Name  string `json:"name"`
	Emoji string `json:"emoji"`
}

var classes = func() []Class {
	out := make([]Class, len(labels))
	for i, l := range labels {
		out[i] = Class{Name: l, Emoji: Symbol(l)}
	}
	return out
}()

// Label returns the label for a model output index.
func Label(idx int) (string, bool) {
	if idx < 0 || idx >= len(labels) {
		return "", false
	}
	return labels[idx], true
}

// Labels returns a copy of the ordered vocabulary.
func Labels() []string {
	out := make([]string, len(labels))
	copy(out, labels[:])
	return out
}

// Symbol returns the display symbol for label, falling back to DefaultSymbol.
func Symbol(label string) string {
	if s, ok := symbols[label]; ok {
		return s
	}
	return DefaultSymbol
}

// Classes returns every vocabulary entry in model order. The returned slice
// is a copy.
func Classes() []Class {
	out := make([]Class, len(classes))
	copy(out, classes)
	return out
}

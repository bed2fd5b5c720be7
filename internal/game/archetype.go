package game

// Archetype is the trading profile behind a bot's character tag.
// Aggressiveness drives how far the bot leans on its private estimate and
// how often it lifts the offer; SpreadFactor widens the bid/ask it quotes.
type Archetype struct {
	Aggressiveness float64
	SpreadFactor   float64
}

var archetypes = map[string]Archetype{
	"shark":  {Aggressiveness: 0.85, SpreadFactor: 1.2},
	"rocket": {Aggressiveness: 0.70, SpreadFactor: 1.8},
	"owl":    {Aggressiveness: 0.45, SpreadFactor: 2.4},
	"turtle": {Aggressiveness: 0.25, SpreadFactor: 3.0},
}

var defaultArchetype = Archetype{Aggressiveness: 0.5, SpreadFactor: 2.0}

// ArchetypeFor returns the profile for a character tag, falling back to a
// balanced default for unknown tags.
func ArchetypeFor(character string) Archetype {
	if a, ok := archetypes[character]; ok {
		return a
	}
	return defaultArchetype
}

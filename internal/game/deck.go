package game

import "math/rand"

// Hand and community sizes for one round.
const (
	holeCards      = 2
	communityCards = 3
	maxRank        = 13
	suits          = 4
)

// Deal holds the cards dealt for one round: two hole cards per player and
// three shared community cards. Card values are ranks 1..13.
type Deal struct {
	Hands     map[string][]int
	Community []int
}

// Dealer deals a round for the given seated player ids. The engine treats
// it as an opaque primitive so tests can substitute a deterministic one.
type Dealer interface {
	Deal(playerIDs []string) Deal
}

// SettlementValue is the value the traded instrument settles at: the sum
// of the revealed community cards.
func SettlementValue(d Deal) float64 {
	var sum int
	for _, c := range d.Community {
		sum += c
	}
	return float64(sum)
}

// ExpectedValue is the a-priori settlement value before any cards are
// revealed. Bots quote around this.
func ExpectedValue() float64 {
	// mean rank is 7, three community cards
	return float64(communityCards) * 7
}

// deckDealer deals from a freshly shuffled 52-card deck each round.
type deckDealer struct{}

// NewDealer returns the standard shuffled-deck dealer.
func NewDealer() Dealer {
	return deckDealer{}
}

func (deckDealer) Deal(playerIDs []string) Deal {
	deck := make([]int, 0, maxRank*suits)
	for s := 0; s < suits; s++ {
		for r := 1; r <= maxRank; r++ {
			deck = append(deck, r)
		}
	}
	rand.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})

	d := Deal{Hands: make(map[string][]int, len(playerIDs))}
	next := 0
	for _, id := range playerIDs {
		d.Hands[id] = deck[next : next+holeCards]
		next += holeCards
	}
	d.Community = deck[next : next+communityCards]
	return d
}

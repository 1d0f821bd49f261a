package games

import (
	"errors"
	"math"

	"github.com/MJE43/pf-casino/internal/engine"
)

// ErrDeckExhausted is the panic value raised when a hand is dealt from an
// empty draw pile. A shuffled 52-card shoe cannot run dry in one round, so
// reaching it means the state was corrupted.
var ErrDeckExhausted = errors.New("blackjack: draw pile exhausted")

// Card is one card of a standard deck. Value is the blackjack point value
// with aces counted high.
type Card struct {
	Suit  string `json:"suit"`
	Rank  string `json:"rank"`
	Value int    `json:"value"`
}

// String returns a card like "♠A" or "♦10".
func (c Card) String() string {
	return c.Suit + c.Rank
}

const deckSize = 52

// Suit-major deck order: ♠A, ♠2, ..., ♠K, ♥A, ...
var (
	cardSuits = []string{"♠", "♥", "♦", "♣"}
	cardRanks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}
)

// NewDeck returns the unshuffled 52-card deck.
func NewDeck() []Card {
	deck := make([]Card, 0, deckSize)
	for _, suit := range cardSuits {
		for _, rank := range cardRanks {
			deck = append(deck, Card{Suit: suit, Rank: rank, Value: blackjackCardValue(rank)})
		}
	}
	return deck
}

// blackjackCardValue returns the point value of a rank.
// 2-10: face value, J/Q/K: 10, A: 11 (soft)
func blackjackCardValue(rank string) int {
	switch rank {
	case "A":
		return 11
	case "J", "Q", "K", "10":
		return 10
	default:
		return int(rank[0] - '0')
	}
}

// Shuffle permutes a copy of deck with a seeded Fisher-Yates pass. The swap
// partner for position i is floor(draw(seed, i) * (i+1)); the nonce is the
// loop index itself.
func Shuffle(d engine.Drawer, deck []Card, seed string) []Card {
	shuffled := make([]Card, len(deck))
	copy(shuffled, deck)

	draw := d.Stream(seed)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := int(math.Floor(draw(uint64(i)) * float64(i+1)))
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}

// HandValue is the best blackjack total: aces count 11, then drop to 1 one
// at a time while the hand is over 21.
func HandValue(cards []Card) int {
	total := 0
	aces := 0
	for _, c := range cards {
		total += c.Value
		if c.Rank == "A" {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

package games

import (
	"context"
	"slices"

	"github.com/qmuntal/stateless"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-casino/internal/odds"
)

// BlackjackStatus is the lifecycle position of a Blackjack round.
type BlackjackStatus string

const (
	BlackjackDealt        BlackjackStatus = "dealt"
	BlackjackPlayerActing BlackjackStatus = "player_acting"
	BlackjackDealerActing BlackjackStatus = "dealer_acting"
	BlackjackSettled      BlackjackStatus = "settled"
)

// BlackjackOutcome is the settled result from the player's side.
type BlackjackOutcome string

const (
	OutcomeWin  BlackjackOutcome = "win"
	OutcomePush BlackjackOutcome = "push"
	OutcomeLose BlackjackOutcome = "lose"
)

// Player actions, as recorded for replay.
const (
	ActionHit   = "hit"
	ActionStand = "stand"
)

const (
	triggerHit    = "hit"
	triggerStand  = "stand"
	triggerSettle = "settle"

	dealerStandsOn  = 17
	blackjackNonces = deckSize - 1
)

// BlackjackState is one Blackjack round. Pile is the undealt remainder of
// the shuffled deck, drawn from the front.
type BlackjackState struct {
	Status  BlackjackStatus
	Player  []Card
	Dealer  []Card
	Pile    []Card
	Stood   bool
	Outcome BlackjackOutcome
	Actions []string

	drawer string
}

// StartBlackjack shuffles a fresh deck for seed and deals player cards from
// positions 0 and 2, dealer cards from 1 and 3.
func (e *Engine) StartBlackjack(seed string) BlackjackState {
	deck := Shuffle(e.drawer, NewDeck(), seed)
	return BlackjackState{
		Status:  BlackjackDealt,
		Player:  []Card{deck[0], deck[2]},
		Dealer:  []Card{deck[1], deck[3]},
		Pile:    slices.Clone(deck[4:]),
		Actions: []string{},
		drawer:  e.drawer.Name(),
	}
}

// Hit deals the next card to the player. Going over 21 settles the round
// as a loss. No-op once the player has stood or the round is settled.
func (s BlackjackState) Hit() BlackjackState {
	next := s.clone()
	fire(next.machine(), triggerHit)
	return next
}

// Stand ends the player's turn. The dealer draws until reaching 17 or more
// and the round settles. No-op on a settled round.
func (s BlackjackState) Stand() BlackjackState {
	next := s.clone()
	sm := next.machine()
	fire(sm, triggerStand)
	fire(sm, triggerSettle)
	return next
}

// Terminal reports whether the round is settled.
func (s BlackjackState) Terminal() bool {
	return s.Status == BlackjackSettled
}

// PlayerValue is the player's hand total.
func (s BlackjackState) PlayerValue() int { return HandValue(s.Player) }

// DealerValue is the dealer's hand total, hole card included.
func (s BlackjackState) DealerValue() int { return HandValue(s.Dealer) }

// Factor is the payout factor of the outcome: 2 for a win, 1 for a push,
// 0 for a loss or an unsettled round.
func (s BlackjackState) Factor() float64 {
	switch s.Outcome {
	case OutcomeWin:
		return odds.BlackjackWinFactor
	case OutcomePush:
		return odds.BlackjackPushFactor
	default:
		return odds.BlackjackLoseFactor
	}
}

// Payout is wager x Factor.
func (s BlackjackState) Payout(wager decimal.Decimal) decimal.Decimal {
	if !s.Terminal() {
		return decimal.Zero
	}
	return odds.PayoutFloat(wager, s.Factor())
}

func (s BlackjackState) clone() BlackjackState {
	s.Player = slices.Clone(s.Player)
	s.Dealer = slices.Clone(s.Dealer)
	s.Pile = slices.Clone(s.Pile)
	s.Actions = slices.Clone(s.Actions)
	return s
}

func (s *BlackjackState) machine() *stateless.StateMachine {
	sm := newMachine(
		func() stateless.State { return s.Status },
		func(st stateless.State) { s.Status = st.(BlackjackStatus) },
	)

	sm.Configure(BlackjackDealt).
		Permit(triggerHit, BlackjackPlayerActing, s.survivesHit).
		Permit(triggerHit, BlackjackSettled, s.bustsOnHit).
		Permit(triggerStand, BlackjackDealerActing)

	sm.Configure(BlackjackPlayerActing).
		OnEntryFrom(triggerHit, s.dealPlayer).
		InternalTransition(triggerHit, s.dealPlayer, s.survivesHit).
		Permit(triggerHit, BlackjackSettled, s.bustsOnHit).
		Permit(triggerStand, BlackjackDealerActing)

	sm.Configure(BlackjackDealerActing).
		OnEntry(s.playDealer).
		Permit(triggerSettle, BlackjackSettled)

	sm.Configure(BlackjackSettled).
		OnEntryFrom(triggerHit, s.bust).
		OnEntryFrom(triggerSettle, s.settle)

	return sm
}

// peek returns the next card without dealing it.
func (s *BlackjackState) peek() Card {
	if len(s.Pile) == 0 {
		panic(ErrDeckExhausted)
	}
	return s.Pile[0]
}

func (s *BlackjackState) draw() Card {
	c := s.peek()
	s.Pile = s.Pile[1:]
	return c
}

func (s *BlackjackState) bustsOnHit(context.Context, ...any) bool {
	return HandValue(append(slices.Clip(s.Player), s.peek())) > 21
}

func (s *BlackjackState) survivesHit(ctx context.Context, args ...any) bool {
	return !s.bustsOnHit(ctx, args...)
}

func (s *BlackjackState) dealPlayer(context.Context, ...any) error {
	s.Player = append(s.Player, s.draw())
	s.Actions = append(s.Actions, ActionHit)
	return nil
}

func (s *BlackjackState) bust(ctx context.Context, args ...any) error {
	if err := s.dealPlayer(ctx, args...); err != nil {
		return err
	}
	s.Outcome = OutcomeLose
	return nil
}

// playDealer applies the house rule: hit on 16 or less, stand on 17,
// soft or hard.
func (s *BlackjackState) playDealer(context.Context, ...any) error {
	s.Stood = true
	s.Actions = append(s.Actions, ActionStand)
	for HandValue(s.Dealer) < dealerStandsOn {
		s.Dealer = append(s.Dealer, s.draw())
	}
	return nil
}

func (s *BlackjackState) settle(context.Context, ...any) error {
	player, dealer := HandValue(s.Player), HandValue(s.Dealer)
	switch {
	case dealer > 21 || player > dealer:
		s.Outcome = OutcomeWin
	case player == dealer:
		s.Outcome = OutcomePush
	default:
		s.Outcome = OutcomeLose
	}
	return nil
}

// BlackjackView is what the player may see. The dealer's hole card (the
// second dealer card) stays face down until the player stands.
type BlackjackView struct {
	Status      BlackjackStatus  `json:"status"`
	Player      []Card           `json:"player"`
	PlayerValue int              `json:"player_value"`
	Dealer      []Card           `json:"dealer"`
	DealerValue int              `json:"dealer_value"`
	HoleHidden  bool             `json:"hole_hidden"`
	Outcome     BlackjackOutcome `json:"outcome,omitempty"`
}

// View projects the state for the player.
func (s BlackjackState) View() BlackjackView {
	v := BlackjackView{
		Status:      s.Status,
		Player:      slices.Clone(s.Player),
		PlayerValue: HandValue(s.Player),
		Outcome:     s.Outcome,
	}
	if s.Stood || s.Terminal() {
		v.Dealer = slices.Clone(s.Dealer)
	} else {
		v.Dealer = slices.Clone(s.Dealer[:1])
		v.HoleHidden = true
	}
	v.DealerValue = HandValue(v.Dealer)
	return v
}

// BlackjackResult is the audit record of a Blackjack round.
type BlackjackResult struct {
	Player      []Card           `json:"player"`
	Dealer      []Card           `json:"dealer"`
	PlayerValue int              `json:"player_value"`
	DealerValue int              `json:"dealer_value"`
	Outcome     BlackjackOutcome `json:"outcome"`
	Actions     []string         `json:"actions"`
}

// Result returns the audit record.
func (s BlackjackState) Result() BlackjackResult {
	return BlackjackResult{
		Player:      slices.Clone(s.Player),
		Dealer:      slices.Clone(s.Dealer),
		PlayerValue: HandValue(s.Player),
		DealerValue: HandValue(s.Dealer),
		Outcome:     s.Outcome,
		Actions:     append([]string{}, s.Actions...),
	}
}

// Resolve packages the round for settlement.
func (s BlackjackState) Resolve(seed string, wager decimal.Decimal) Resolution {
	factor := 0.0
	if s.Terminal() {
		factor = s.Factor()
	}
	return Resolution{
		Round: Round{
			Game:    GameBlackjack,
			Drawer:  s.drawer,
			Seed:    seed,
			Wager:   wager,
			Actions: append([]string{}, s.Actions...),
		},
		NoncesUsed: blackjackNonces,
		Won:        s.Outcome == OutcomeWin,
		Multiplier: factor,
		Payout:     s.Payout(wager),
		Detail:     s.Result(),
	}
}

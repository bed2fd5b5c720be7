// Package game implements the settlement engine for trading rounds: it
// deals cards, folds pending trades into player balances, picks a winner
// and generates bot order flow for the current market state.
package game

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"trading-room-game/internal/model"
)

// Engine is the round settlement and bot order flow generator consumed by
// the room service.
type Engine interface {
	// CompleteRound deals a round, applies the pending trades to player
	// balances, determines the winner and returns the settled players
	// plus a snapshot for client replay.
	CompleteRound(room *model.Room, pending []model.TradeSummary) *RoundResult

	// GenerateBotTrades produces one trade per seated bot player against
	// a preferentially human counterparty. Returns nil when the room has
	// no bots or no possible counterparty.
	GenerateBotTrades(room *model.Room) []model.TradeSummary
}

// RoundResult is the outcome of settling one round.
type RoundResult struct {
	Players  []model.Player
	WinnerID string
	State    *model.GameState
}

// Config holds engine tunables.
type Config struct {
	// HouseFeeRate is the fraction of each trade's value deducted from
	// both participants at settlement.
	HouseFeeRate float64
}

// GameEngine is the default Engine implementation.
type GameEngine struct {
	feeRate float64
	dealer  Dealer
}

// NewEngine creates a GameEngine. A nil dealer selects the standard
// shuffled-deck dealer.
func NewEngine(cfg Config, dealer Dealer) *GameEngine {
	if dealer == nil {
		dealer = NewDealer()
	}
	return &GameEngine{feeRate: cfg.HouseFeeRate, dealer: dealer}
}

// CompleteRound settles the round. Trades referencing players who have
// since left the room are skipped. Balances are rounded to two decimal
// places only at the player boundary.
func (e *GameEngine) CompleteRound(room *model.Room, pending []model.TradeSummary) *RoundResult {
	players := make([]model.Player, len(room.Players))
	copy(players, room.Players)

	ids := make([]string, len(players))
	index := make(map[string]int, len(players))
	for i := range players {
		ids[i] = players[i].ID
		index[players[i].ID] = i
	}

	deal := e.dealer.Deal(ids)
	settle := SettlementValue(deal)

	balances := make([]float64, len(players))
	for i := range players {
		balances[i] = players[i].Balance
	}

	for _, trade := range pending {
		buyerID, sellerID := trade.PlayerID, trade.CounterpartyID
		if trade.Side == model.TradeSell {
			buyerID, sellerID = sellerID, buyerID
		}
		bi, buyerSeated := index[buyerID]
		si, sellerSeated := index[sellerID]
		if !buyerSeated || !sellerSeated {
			continue
		}

		pl := (settle - trade.Price) * float64(trade.Quantity)
		fee := trade.Value * e.feeRate
		balances[bi] += pl - fee
		balances[si] += -pl - fee
	}

	winner := 0
	for i := range players {
		players[i].Balance = round2(balances[i])
		players[i].IsWinner = false
		if players[i].Balance > players[winner].Balance {
			winner = i
		}
	}

	var winnerID string
	if len(players) > 0 {
		players[winner].IsWinner = true
		winnerID = players[winner].ID
	}

	state := &model.GameState{
		Round:          room.RoundNumber,
		Phase:          model.PhaseSettled,
		Trades:         append([]model.TradeSummary(nil), pending...),
		CommunityCards: deal.Community,
		Hands:          deal.Hands,
		StartedAt:      startedAt(room),
	}

	return &RoundResult{Players: players, WinnerID: winnerID, State: state}
}

func startedAt(room *model.Room) int64 {
	if room.GameState != nil {
		return room.GameState.StartedAt
	}
	return 0
}

// GenerateBotTrades models bot order flow injected mid-window. Each bot
// estimates fair value from a random card delta scaled by its archetype,
// quotes a spread around it, crosses on the side its aggressiveness
// favors, and trades against a human counterparty when one is seated.
func (e *GameEngine) GenerateBotTrades(room *model.Room) []model.TradeSummary {
	bots := lo.Filter(room.Players, func(p model.Player, _ int) bool {
		return p.IsBot
	})
	if len(bots) == 0 || len(room.Players) < 2 {
		return nil
	}

	now := time.Now().UnixMilli()
	trades := make([]model.TradeSummary, 0, len(bots))
	for _, bot := range bots {
		counterparty, ok := pickCounterparty(room.Players, bot.ID)
		if !ok {
			continue
		}

		prof := ArchetypeFor(bot.Character)
		delta := float64(rand.Intn(maxRank)+1) - 7
		fair := ExpectedValue() + delta*prof.Aggressiveness
		spread := prof.SpreadFactor * (0.5 + rand.Float64())

		side := model.TradeSell
		price := fair - spread
		if rand.Float64() < 0.3+0.4*prof.Aggressiveness {
			side = model.TradeBuy
			price = fair + spread
		}
		if price < 1 {
			price = 1
		}
		quantity := 1 + rand.Intn(5)

		trades = append(trades, model.TradeSummary{
			ID:               uuid.NewString(),
			PlayerID:         bot.ID,
			PlayerName:       bot.Name,
			CounterpartyID:   counterparty.ID,
			CounterpartyName: counterparty.Name,
			Quantity:         quantity,
			Price:            price,
			Value:            price * float64(quantity),
			Side:             side,
			Timestamp:        now,
		})
	}
	return trades
}

// pickCounterparty prefers a human opponent, falling back to any other
// seated player when no humans remain.
func pickCounterparty(players []model.Player, selfID string) (model.Player, bool) {
	humans := lo.Filter(players, func(p model.Player, _ int) bool {
		return !p.IsBot && p.ID != selfID
	})
	if len(humans) > 0 {
		return humans[rand.Intn(len(humans))], true
	}

	others := lo.Filter(players, func(p model.Player, _ int) bool {
		return p.ID != selfID
	})
	if len(others) == 0 {
		return model.Player{}, false
	}
	return others[rand.Intn(len(others))], true
}

// round2 rounds a monetary value to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Package model defines the data models for the trading room game.
package model

import "time"

// RoomStatus is the lifecycle state of a room.
type RoomStatus string

// Room lifecycle states. Starting is a transient status accepted by some
// callers; the canonical flow moves straight from waiting to playing.
const (
	StatusWaiting  RoomStatus = "waiting"
	StatusStarting RoomStatus = "starting"
	StatusPlaying  RoomStatus = "playing"
	StatusFinished RoomStatus = "finished"
)

// TradeSide is the direction of a trade from the initiator's point of view.
type TradeSide string

const (
	TradeBuy  TradeSide = "buy"
	TradeSell TradeSide = "sell"
)

// Round phases recorded in the GameState snapshot.
const (
	PhaseTrading = "trading"
	PhaseSettled = "settled"
)

// Room is the root aggregate: one record per room.
type Room struct {
	ID            string         `json:"id" bson:"_id"`
	Name          string         `json:"name" bson:"name"`
	HostID        string         `json:"hostId" bson:"hostId"`
	HostName      string         `json:"hostName" bson:"hostName"`
	MaxPlayers    int            `json:"maxPlayers" bson:"maxPlayers"`
	Status        RoomStatus     `json:"status" bson:"status"`
	Players       []Player       `json:"players" bson:"players"`
	RoundNumber   int            `json:"roundNumber" bson:"roundNumber"`
	GameState     *GameState     `json:"gameState,omitempty" bson:"gameState,omitempty"`
	RoundEndsAt   int64          `json:"roundEndsAt,omitempty" bson:"roundEndsAt,omitempty"`
	PendingTrades []TradeSummary `json:"pendingTrades" bson:"pendingTrades"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// Player is one seat in a room.
type Player struct {
	ID        string  `json:"id" bson:"id"`
	Name      string  `json:"name" bson:"name"`
	JoinedAt  int64   `json:"joinedAt" bson:"joinedAt"`
	Balance   float64 `json:"balance" bson:"balance"`
	Character string  `json:"character" bson:"character"`
	IsBot     bool    `json:"isBot" bson:"isBot"`
	IsWinner  bool    `json:"isWinner" bson:"isWinner"`
}

// TradeSummary is an immutable record of one matched trade.
// Value is price times quantity and stays unrounded until surfaced.
type TradeSummary struct {
	ID               string    `json:"id" bson:"id"`
	PlayerID         string    `json:"playerId" bson:"playerId"`
	PlayerName       string    `json:"playerName" bson:"playerName"`
	CounterpartyID   string    `json:"counterpartyId" bson:"counterpartyId"`
	CounterpartyName string    `json:"counterpartyName" bson:"counterpartyName"`
	Quantity         int       `json:"quantity" bson:"quantity"`
	Price            float64   `json:"price" bson:"price"`
	Value            float64   `json:"value" bson:"value"`
	Side             TradeSide `json:"type" bson:"type"`
	Timestamp        int64     `json:"timestamp" bson:"timestamp"`
}

// GameState is a snapshot of the in-progress or just-finished round.
// Hands and CommunityCards are populated at settlement when cards are revealed.
type GameState struct {
	Round          int              `json:"round" bson:"round"`
	Phase          string           `json:"phase" bson:"phase"`
	Trades         []TradeSummary   `json:"trades" bson:"trades"`
	CommunityCards []int            `json:"communityCards,omitempty" bson:"communityCards,omitempty"`
	Hands          map[string][]int `json:"hands,omitempty" bson:"hands,omitempty"`
	StartedAt      int64            `json:"startedAt" bson:"startedAt"`
}

// PlayerIndex returns the index of the player with the given id, or -1.
func (r *Room) PlayerIndex(playerID string) int {
	for i := range r.Players {
		if r.Players[i].ID == playerID {
			return i
		}
	}
	return -1
}

// HasPlayer reports whether the player is seated in the room.
func (r *Room) HasPlayer(playerID string) bool {
	return r.PlayerIndex(playerID) >= 0
}

// IsFull reports whether the room is at capacity.
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

// Clone returns a deep copy of the room. Mutations always operate on a
// fresh clone, never on a reference shared with other callers.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	out := *r
	out.Players = make([]Player, len(r.Players))
	copy(out.Players, r.Players)
	out.PendingTrades = make([]TradeSummary, len(r.PendingTrades))
	copy(out.PendingTrades, r.PendingTrades)
	out.GameState = r.GameState.Clone()
	return &out
}

// Clone returns a deep copy of the game state.
func (g *GameState) Clone() *GameState {
	if g == nil {
		return nil
	}
	out := *g
	out.Trades = make([]TradeSummary, len(g.Trades))
	copy(out.Trades, g.Trades)
	if g.CommunityCards != nil {
		out.CommunityCards = append([]int(nil), g.CommunityCards...)
	}
	if g.Hands != nil {
		out.Hands = make(map[string][]int, len(g.Hands))
		for id, cards := range g.Hands {
			out.Hands[id] = append([]int(nil), cards...)
		}
	}
	return &out
}

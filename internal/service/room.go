// Package service orchestrates the room lifecycle: state machine
// transitions, timer-driven round scheduling, settlement, and event
// emission.
package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trading-room-game/internal/events"
	"trading-room-game/internal/game"
	"trading-room-game/internal/model"
	"trading-room-game/internal/pkg/timer"
	"trading-room-game/internal/repository"
)

// opTimeout bounds store access from timer callbacks, which have no
// caller-provided context.
const opTimeout = 10 * time.Second

// minRecoveryDelay is the floor for re-armed settlement timers after a
// restart.
const minRecoveryDelay = time.Second

// errSkip aborts a RunAtomic cycle without writing, used by timer
// callbacks that find the room already gone or already transitioned.
var errSkip = errors.New("no transition to apply")

// Config holds service tunables. Zero values fall back to defaults.
type Config struct {
	TradingWindow  time.Duration
	NextRoundDelay time.Duration
	BotTradeDelay  time.Duration
	InitialBalance float64
	ListLimit      int
}

func (c *Config) applyDefaults() {
	if c.TradingWindow <= 0 {
		c.TradingWindow = 20 * time.Second
	}
	if c.NextRoundDelay <= 0 {
		c.NextRoundDelay = 5 * time.Second
	}
	if c.BotTradeDelay <= 0 {
		c.BotTradeDelay = 8 * time.Second
	}
	if c.InitialBalance <= 0 {
		c.InitialBalance = 1000
	}
	if c.ListLimit <= 0 {
		c.ListLimit = 50
	}
}

// PlayerInput identifies a pre-authenticated player joining a room.
type PlayerInput struct {
	ID        string
	Name      string
	Character string
	IsBot     bool
}

// TradeInput is a quote submitted during the trading window. Price and
// quantity bounds are validated by the caller before reaching the engine.
type TradeInput struct {
	Price    float64
	Quantity int
	Side     model.TradeSide
}

// RoomService drives the room/round lifecycle over an injected store.
// All mutations follow the same path: read the current record, compute
// the next one, commit atomically, then publish the event.
type RoomService struct {
	store  repository.RoomStore
	engine game.Engine
	timers *timer.Registry
	bus    *events.Bus
	cfg    Config
	log    zerolog.Logger
}

// New creates a RoomService. The timer registry is owned by the service,
// never shared.
func New(store repository.RoomStore, engine game.Engine, bus *events.Bus, cfg Config, log zerolog.Logger) *RoomService {
	cfg.applyDefaults()
	return &RoomService{
		store:  store,
		engine: engine,
		timers: timer.NewRegistry(),
		bus:    bus,
		cfg:    cfg,
		log:    log,
	}
}

// CreateRoom creates a room with the host as its only player.
func (s *RoomService) CreateRoom(ctx context.Context, name string, maxPlayers int, hostID, hostName string) (*model.Room, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 3 || n > 50 {
		return nil, ErrInvalidRoomName
	}
	if maxPlayers < 2 || maxPlayers > 8 {
		return nil, ErrInvalidCapacity
	}

	id := uuid.NewString()
	now := time.Now()
	room, err := s.store.RunAtomic(ctx, id, func(current *model.Room) (*model.Room, error) {
		return &model.Room{
			ID:         id,
			Name:       name,
			HostID:     hostID,
			HostName:   hostName,
			MaxPlayers: maxPlayers,
			Status:     model.StatusWaiting,
			Players: []model.Player{{
				ID:       hostID,
				Name:     hostName,
				JoinedAt: now.UnixMilli(),
				Balance:  s.cfg.InitialBalance,
			}},
			PendingTrades: []model.TradeSummary{},
			CreatedAt:     now,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.PublishRoomUpdated(room)
	s.log.Info().Str("room_id", id).Str("host_id", hostID).Msg("room created")
	return room, nil
}

// JoinRoom seats a player. Joining again with the same id is idempotent
// and emits nothing. Filling the last seat of an idle room starts a
// round as a side effect: a full room begins trading without waiting
// for the host. A round already in progress is left untouched.
func (s *RoomService) JoinRoom(ctx context.Context, roomID string, in PlayerInput) (*model.Room, error) {
	var started bool
	room, err := s.store.RunAtomic(ctx, roomID, func(current *model.Room) (*model.Room, error) {
		if current == nil {
			return nil, ErrRoomNotFound
		}
		if current.HasPlayer(in.ID) {
			return nil, errSkip
		}
		if current.IsFull() {
			return nil, ErrRoomFull
		}

		current.Players = append(current.Players, model.Player{
			ID:        in.ID,
			Name:      in.Name,
			JoinedAt:  time.Now().UnixMilli(),
			Balance:   s.cfg.InitialBalance,
			Character: in.Character,
			IsBot:     in.IsBot,
		})
		if current.IsFull() && current.Status != model.StatusPlaying {
			s.prepareRound(current)
			started = true
		}
		return current, nil
	})
	if errors.Is(err, errSkip) {
		return s.GetRoom(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	s.bus.PublishRoomUpdated(room)
	if started {
		s.armRoundTimers(roomID)
		s.log.Info().Str("room_id", roomID).Int("round", room.RoundNumber).Msg("room full, round started")
	}
	s.log.Info().Str("room_id", roomID).Str("player_id", in.ID).Msg("player joined")
	return room, nil
}

// LeaveRoom unseats a player. The host role passes to the first remaining
// player in join order. When the last player leaves the room is deleted
// together with its timers and room:removed is emitted instead of
// room:updated. Returns nil when the room was deleted.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, playerID string) (*model.Room, error) {
	var removed bool
	room, err := s.store.RunAtomic(ctx, roomID, func(current *model.Room) (*model.Room, error) {
		if current == nil {
			return nil, ErrRoomNotFound
		}
		idx := current.PlayerIndex(playerID)
		if idx < 0 {
			return nil, ErrPlayerNotFound
		}

		current.Players = append(current.Players[:idx], current.Players[idx+1:]...)
		if len(current.Players) == 0 {
			removed = true
			return nil, nil
		}
		if current.HostID == playerID {
			current.HostID = current.Players[0].ID
			current.HostName = current.Players[0].Name
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	if removed {
		s.timers.CancelAll(roomID)
		s.bus.PublishRoomRemoved(roomID)
		s.log.Info().Str("room_id", roomID).Msg("last player left, room removed")
		return nil, nil
	}

	s.bus.PublishRoomUpdated(room)
	s.log.Info().Str("room_id", roomID).Str("player_id", playerID).Msg("player left")
	return room, nil
}

// StartRoom begins a round on the host's request. A full room starts on
// its own via JoinRoom; this explicit path covers partially filled rooms.
func (s *RoomService) StartRoom(ctx context.Context, roomID, requesterID string) (*model.Room, error) {
	room, err := s.store.RunAtomic(ctx, roomID, func(current *model.Room) (*model.Room, error) {
		if current == nil {
			return nil, ErrRoomNotFound
		}
		if requesterID != current.HostID {
			return nil, ErrNotHost
		}
		if current.Status == model.StatusPlaying {
			return nil, ErrRoundInProgress
		}
		if len(current.Players) < 2 {
			return nil, ErrNotEnoughPlayers
		}
		s.prepareRound(current)
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.PublishRoomUpdated(room)
	s.armRoundTimers(roomID)
	s.log.Info().Str("room_id", roomID).Int("round", room.RoundNumber).Msg("round started by host")
	return room, nil
}

// SubmitTrade matches the player's quote against a uniformly random
// seated counterparty and records it in the open trading window. A round
// whose deadline passed while the process was down is settled here, on
// first access, before the trade is rejected.
func (s *RoomService) SubmitTrade(ctx context.Context, roomID, playerID string, in TradeInput) (*model.TradeSummary, error) {
	var settled bool
	var summary model.TradeSummary
	room, err := s.store.RunAtomic(ctx, roomID, func(current *model.Room) (*model.Room, error) {
		if current == nil {
			return nil, ErrRoomNotFound
		}
		if current.Status == model.StatusPlaying && overdue(current) {
			s.finalizeRound(current)
			settled = true
			return current, nil
		}
		if current.Status != model.StatusPlaying {
			return nil, ErrRoundNotActive
		}
		idx := current.PlayerIndex(playerID)
		if idx < 0 {
			return nil, ErrPlayerNotFound
		}

		player := current.Players[idx]
		counterparty := pickRandomCounterparty(current.Players, idx)
		summary = model.TradeSummary{
			ID:               uuid.NewString(),
			PlayerID:         player.ID,
			PlayerName:       player.Name,
			CounterpartyID:   counterparty.ID,
			CounterpartyName: counterparty.Name,
			Quantity:         in.Quantity,
			Price:            in.Price,
			Value:            in.Price * float64(in.Quantity),
			Side:             in.Side,
			Timestamp:        time.Now().UnixMilli(),
		}
		current.PendingTrades = append(current.PendingTrades, summary)
		if current.GameState != nil {
			current.GameState.Trades = append(current.GameState.Trades, summary)
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.PublishRoomUpdated(room)
	if settled {
		s.afterSettlement(roomID, room)
		return nil, ErrRoundNotActive
	}
	return &summary, nil
}

// GetRoom returns the room, settling an overdue round first.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.store.Get(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	if room.Status == model.StatusPlaying && overdue(room) {
		settledRoom, err := s.settleNow(ctx, roomID)
		if err == nil {
			return settledRoom, nil
		}
		if !errors.Is(err, errSkip) {
			return nil, err
		}
		// lost the race against the settlement timer, re-read
		return s.GetRoom(ctx, roomID)
	}
	return room, nil
}

// ListRooms returns the most recently active rooms.
func (s *RoomService) ListRooms(ctx context.Context) ([]*model.Room, error) {
	return s.store.List(ctx, s.cfg.ListLimit)
}

// Recover re-arms settlement timers for rounds that were in flight when
// the process stopped. Rounds whose deadline already passed are settled
// lazily on first access instead.
func (s *RoomService) Recover(ctx context.Context) error {
	rooms, err := s.store.List(ctx, 0)
	if err != nil {
		return err
	}

	rearmed := 0
	for _, room := range rooms {
		if room.Status != model.StatusPlaying {
			continue
		}
		remaining := time.Until(time.UnixMilli(room.RoundEndsAt))
		if remaining <= 0 {
			continue
		}
		if remaining < minRecoveryDelay {
			remaining = minRecoveryDelay
		}
		roomID := room.ID
		s.timers.Arm(roomID, timer.KindSettle, remaining, func() { s.handleSettleTimer(roomID) })
		rearmed++
	}
	s.log.Info().Int("rooms", len(rooms)).Int("rearmed", rearmed).Msg("recovery scan complete")
	return nil
}

// Close cancels all scheduled callbacks. In-flight ones run to completion.
func (s *RoomService) Close() {
	s.timers.Stop()
}

// prepareRound transitions the record into a fresh trading window.
func (s *RoomService) prepareRound(room *model.Room) {
	now := time.Now()
	room.RoundNumber++
	room.Status = model.StatusPlaying
	room.RoundEndsAt = now.Add(s.cfg.TradingWindow).UnixMilli()
	room.PendingTrades = []model.TradeSummary{}
	for i := range room.Players {
		room.Players[i].IsWinner = false
	}
	room.GameState = &model.GameState{
		Round:     room.RoundNumber,
		Phase:     model.PhaseTrading,
		Trades:    []model.TradeSummary{},
		StartedAt: now.UnixMilli(),
	}
}

// finalizeRound folds the pending trades into player balances and closes
// the window. Runs inside a RunAtomic cycle.
func (s *RoomService) finalizeRound(room *model.Room) {
	result := s.engine.CompleteRound(room, room.PendingTrades)
	room.Players = result.Players
	room.GameState = result.State
	room.Status = model.StatusFinished
	room.PendingTrades = []model.TradeSummary{}
	room.RoundEndsAt = 0
}

// armRoundTimers schedules settlement and bot order flow for a window
// that just opened.
func (s *RoomService) armRoundTimers(roomID string) {
	s.timers.Arm(roomID, timer.KindSettle, s.cfg.TradingWindow, func() { s.handleSettleTimer(roomID) })
	s.timers.Arm(roomID, timer.KindBotTrades, s.cfg.BotTradeDelay, func() { s.handleBotTradesTimer(roomID) })
}

// settleNow runs the settlement transition, returning errSkip when the
// room is gone or the round already settled.
func (s *RoomService) settleNow(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.store.RunAtomic(ctx, roomID, func(current *model.Room) (*model.Room, error) {
		if current == nil || current.Status != model.StatusPlaying {
			return nil, errSkip
		}
		s.finalizeRound(current)
		return current, nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.PublishRoomUpdated(room)
	s.afterSettlement(roomID, room)
	return room, nil
}

// afterSettlement disarms the window timers and, with enough players
// left, schedules the next round. This keeps a room cycling without
// further host input.
func (s *RoomService) afterSettlement(roomID string, room *model.Room) {
	s.timers.Cancel(roomID, timer.KindSettle)
	s.timers.Cancel(roomID, timer.KindBotTrades)
	if len(room.Players) >= 2 {
		s.timers.Arm(roomID, timer.KindNextRound, s.cfg.NextRoundDelay, func() { s.handleNextRoundTimer(roomID) })
	}
	s.log.Info().
		Str("room_id", roomID).
		Int("round", room.RoundNumber).
		Str("winner_id", winnerID(room)).
		Msg("round settled")
}

// handleSettleTimer is the settlement deadline callback. Failures are
// logged, never propagated: a failed scheduled settlement is retried on
// next access or by the restart recovery scan.
func (s *RoomService) handleSettleTimer(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.settleNow(ctx, roomID); err != nil && !errors.Is(err, errSkip) {
		s.log.Error().Err(err).Str("room_id", roomID).Msg("scheduled settlement failed")
	}
}

// handleNextRoundTimer opens the next trading window of the automated
// round loop.
func (s *RoomService) handleNextRoundTimer(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	room, err := s.store.RunAtomic(ctx, roomID, func(current *model.Room) (*model.Room, error) {
		if current == nil || current.Status == model.StatusPlaying || len(current.Players) < 2 {
			return nil, errSkip
		}
		s.prepareRound(current)
		return current, nil
	})
	if err != nil {
		if !errors.Is(err, errSkip) {
			s.log.Error().Err(err).Str("room_id", roomID).Msg("next round kickoff failed")
		}
		return
	}

	s.bus.PublishRoomUpdated(room)
	s.armRoundTimers(roomID)
	s.log.Info().Str("room_id", roomID).Int("round", room.RoundNumber).Msg("next round started")
}

// handleBotTradesTimer injects bot order flow into the open window.
func (s *RoomService) handleBotTradesTimer(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	room, err := s.store.RunAtomic(ctx, roomID, func(current *model.Room) (*model.Room, error) {
		if current == nil || current.Status != model.StatusPlaying || overdue(current) {
			return nil, errSkip
		}
		trades := s.engine.GenerateBotTrades(current)
		if len(trades) == 0 {
			return nil, errSkip
		}
		current.PendingTrades = append(current.PendingTrades, trades...)
		if current.GameState != nil {
			current.GameState.Trades = append(current.GameState.Trades, trades...)
		}
		return current, nil
	})
	if err != nil {
		if !errors.Is(err, errSkip) {
			s.log.Error().Err(err).Str("room_id", roomID).Msg("bot trade injection failed")
		}
		return
	}

	s.bus.PublishRoomUpdated(room)
}

// overdue reports whether the trading window deadline has passed.
func overdue(room *model.Room) bool {
	return room.RoundEndsAt > 0 && time.Now().UnixMilli() >= room.RoundEndsAt
}

// pickRandomCounterparty selects a uniformly random seated player other
// than the initiator. The self-trade fallback only applies to a
// single-player room, which cannot occur while a round is playing.
func pickRandomCounterparty(players []model.Player, selfIdx int) model.Player {
	if len(players) < 2 {
		return players[selfIdx]
	}
	idx := rand.Intn(len(players) - 1)
	if idx >= selfIdx {
		idx++
	}
	return players[idx]
}

func winnerID(room *model.Room) string {
	for i := range room.Players {
		if room.Players[i].IsWinner {
			return room.Players[i].ID
		}
	}
	return ""
}

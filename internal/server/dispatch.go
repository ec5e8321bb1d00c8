package server

import (
	"github.com/lox/borsa/internal/game"
	"github.com/lox/borsa/internal/gameid"
	"github.com/lox/borsa/internal/protocol"
)

// dispatch handles one inbound frame to completion. Failures go back to
// the sender only; successes broadcast the room to every bound connection.
func (s *Server) dispatch(c *Connection, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		s.stats.recordRejected(protocol.NewError(err).Code)
		c.sendError(err)
		return
	}

	_, playerID := c.Binding()
	c.logger.Debug("Received message", "type", env.Type, "player", playerID)

	if err := s.handle(c, env); err != nil {
		if game.KindOf(err) == "" {
			c.logger.Error("Action failed", "type", env.Type, "player", playerID, "error", err)
		} else {
			c.logger.Debug("Action rejected", "type", env.Type, "player", playerID, "error", err)
		}
		s.stats.recordRejected(protocol.NewError(err).Code)
		c.sendError(err)
		return
	}
	s.stats.recordAccepted(env.Type)
}

func (s *Server) handle(c *Connection, env *protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeCreateLobby:
		var msg protocol.CreateLobby
		if err := env.DecodePayload(&msg); err != nil {
			return err
		}
		return s.createLobby(c, msg)

	case protocol.TypeJoinLobby:
		var msg protocol.JoinLobby
		if err := env.DecodePayload(&msg); err != nil {
			return err
		}
		return s.joinLobby(c, msg)

	case protocol.TypeStartGame:
		return s.act(c, func(room *game.Room, playerID string) error {
			return room.Start(playerID)
		})

	case protocol.TypePlayCard:
		var msg protocol.PlayCard
		if err := env.DecodePayload(&msg); err != nil {
			return err
		}
		return s.act(c, func(room *game.Room, playerID string) error {
			return room.PlayCard(playerID, msg.CardID, msg.DeterminedStockID, msg.ChosenStockID)
		})

	case protocol.TypeTrade:
		var msg protocol.Trade
		if err := env.DecodePayload(&msg); err != nil {
			return err
		}
		return s.act(c, func(room *game.Room, playerID string) error {
			// Out-of-turn callers are turned away before their input is looked at.
			if err := room.CheckTurn(playerID); err != nil {
				return err
			}
			side, err := game.ParseSide(msg.Side)
			if err != nil {
				return err
			}
			qty, err := msg.Quantity()
			if err != nil {
				return err
			}
			return room.Trade(playerID, side, msg.StockID, qty)
		})

	case protocol.TypeEndTurn:
		return s.act(c, func(room *game.Room, playerID string) error {
			return room.EndTurn(playerID)
		})

	case protocol.TypeLeave:
		s.detach(c)
		return nil

	default:
		return game.Validationf("unknown message type %q", env.Type)
	}
}

func (s *Server) createLobby(c *Connection, msg protocol.CreateLobby) error {
	code, playerID, err := s.registry.Create(msg.Name)
	if err != nil {
		return err
	}
	s.attach(c, code, playerID, true)
	return nil
}

func (s *Server) joinLobby(c *Connection, msg protocol.JoinLobby) error {
	playerID, isHost, err := s.registry.Join(msg.Code, msg.Name)
	if err != nil {
		return err
	}
	s.attach(c, gameid.NormalizeRoomCode(msg.Code), playerID, isHost)
	return nil
}

// attach binds c to a freshly created player, leaving any room it was in
// before, and announces the new member.
func (s *Server) attach(c *Connection, code, playerID string, isHost bool) {
	s.detach(c)

	if err := c.SendMessage(protocol.TypeJoined, protocol.Joined{
		RoomCode: code,
		PlayerID: playerID,
		IsHost:   isHost,
	}); err != nil {
		c.logger.Debug("Failed to confirm join", "error", err)
	}
	c.Bind(code, playerID)

	err := s.registry.Do(code, func(room *game.Room) error {
		s.broadcast(room)
		return nil
	})
	if err != nil {
		c.logger.Warn("Room vanished after join", "code", code, "error", err)
	}
}

// detach marks the player bound to c as disconnected and unbinds it. It is
// a no-op for an unbound connection.
func (s *Server) detach(c *Connection) {
	code, playerID := c.Unbind()
	if code == "" {
		return
	}

	err := s.registry.Do(code, func(room *game.Room) error {
		room.Disconnect(playerID)
		s.broadcast(room)
		return nil
	})
	if err != nil {
		c.logger.Debug("Leaving room failed", "code", code, "error", err)
	}
}

// act runs a turn action for the player bound to c and broadcasts the
// result. A game that ends during the action is archived afterwards.
func (s *Server) act(c *Connection, fn func(room *game.Room, playerID string) error) error {
	code, playerID := c.Binding()
	if code == "" {
		return &game.Error{Kind: game.KindState, Message: "you are not in a room"}
	}

	var record *ArchiveRecord
	err := s.registry.Do(code, func(room *game.Room) error {
		before := room.Phase
		if err := fn(room, playerID); err != nil {
			return err
		}
		if before == game.PhaseLobby && room.Phase == game.PhasePlaying {
			s.stats.recordGameStarted()
		}
		if before == game.PhasePlaying && room.Phase == game.PhaseEnded {
			s.stats.recordGameFinished()
			record = newArchiveRecord(room)
		}
		s.broadcast(room)
		return nil
	})
	if err != nil {
		return err
	}

	if record != nil {
		s.archive(record)
	}
	return nil
}

// broadcast sends every connection bound to room its own projection. The
// caller must hold the room.
func (s *Server) broadcast(room *game.Room) {
	conns := s.roomConnections(room.Code)
	for _, conn := range conns {
		_, viewer := conn.Binding()
		if err := conn.SendMessage(protocol.TypeRoomState, room.Snapshot(viewer)); err != nil {
			conn.logger.Debug("Failed to send room state", "error", err)
		}
	}
	s.logger.Debug("Broadcast room state", "code", room.Code, "recipients", len(conns))
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"altitude/internal/game"
)

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"game": fiber.Map{
			"status":            "running",
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

// roundStateHandler returns the public view of the current round. Seed
// and crash point appear only once the round has crashed.
func (s *FiberServer) roundStateHandler(c *fiber.Ctx) error {
	round, ok := s.store.Current()
	if !ok {
		return c.Status(404).JSON(fiber.Map{
			"error": "no round in progress",
		})
	}
	return c.JSON(round.View())
}

func (s *FiberServer) roundHistoryHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rounds, err := s.db.RecentRounds(c.Context(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to load round history",
		})
	}
	return c.JSON(fiber.Map{"rounds": rounds})
}

type wagerRequest struct {
	ParticipantID string  `json:"participant_id"`
	Stake         float64 `json:"stake"`
	Currency      string  `json:"currency"`
}

func (s *FiberServer) placeWagerHandler(c *fiber.Ctx) error {
	var req wagerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	wager, err := s.engine.PlaceWager(c.Context(), req.ParticipantID, req.Stake, req.Currency)
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(wager)
}

type withdrawRequest struct {
	ParticipantID string `json:"participant_id"`
}

func (s *FiberServer) withdrawHandler(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	wager, err := s.engine.Withdraw(c.Context(), req.ParticipantID)
	if err != nil {
		return settlementError(c, err)
	}
	return c.JSON(wager)
}

type verifyRequest struct {
	Seed            string  `json:"seed"`
	RoundID         string  `json:"round_id"`
	CrashMultiplier float64 `json:"crash_multiplier"`
}

// verifyHandler lets anyone holding a revealed seed confirm a round was
// not manipulated.
func (s *FiberServer) verifyHandler(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Seed == "" || req.RoundID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "seed and round_id are required",
		})
	}

	return c.JSON(fiber.Map{
		"round_id": req.RoundID,
		"valid":    s.generator.Verify(req.CrashMultiplier, req.Seed, req.RoundID),
	})
}

func (s *FiberServer) balanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "user id is required",
		})
	}
	currency := c.Query("currency", s.conf.ReferenceCurrency)

	balance, err := s.wallet.Balance(c.Context(), userID, currency)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "failed to read balance",
		})
	}

	return c.JSON(fiber.Map{
		"user_id":  userID,
		"currency": currency,
		"balance":  balance,
	})
}

type depositRequest struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "user id is required",
		})
	}

	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Currency == "" {
		req.Currency = s.conf.ReferenceCurrency
	}

	balance, err := s.engine.Deposit(c.Context(), userID, req.Amount, req.Currency)
	if err != nil {
		return settlementError(c, err)
	}

	return c.JSON(fiber.Map{
		"user_id":  userID,
		"currency": req.Currency,
		"balance":  balance,
	})
}

// settlementError maps an engine failure to a stable error kind and an
// HTTP status. Validation is 400, state conflicts 409, missing prices
// 503.
func settlementError(c *fiber.Ctx, err error) error {
	status := 500
	kind := "internal"

	switch {
	case errors.Is(err, game.ErrInvalidInput):
		status, kind = 400, "invalid_input"
	case errors.Is(err, game.ErrUnsupportedCurrency):
		status, kind = 400, "unsupported_currency"
	case errors.Is(err, game.ErrInsufficientBalance):
		status, kind = 400, "insufficient_balance"
	case errors.Is(err, game.ErrRoundNotAcceptingWagers):
		status, kind = 409, "round_not_accepting_wagers"
	case errors.Is(err, game.ErrRoundNotActive):
		status, kind = 409, "round_not_active"
	case errors.Is(err, game.ErrNoOpenWager):
		status, kind = 409, "no_open_wager"
	case errors.Is(err, game.ErrPriceUnavailable):
		status, kind = 503, "price_unavailable"
	}

	return c.Status(status).JSON(fiber.Map{
		"error":   kind,
		"message": err.Error(),
	})
}

// wsHandler streams lifecycle events and accepts wager/withdraw
// commands over the same connection.
func (s *FiberServer) wsHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")

	log.Printf("[WS] New connection from user: %s", userID)

	client := s.hub.RegisterClient(conn, userID)

	if round, ok := s.store.Current(); ok {
		client.SendInitialState(round.View())
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			s.hub.UnregisterClient(conn)
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var clientMsg map[string]interface{}
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			continue
		}

		msgType, ok := clientMsg["type"].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "place_wager":
			stake, _ := strconv.ParseFloat(fmt.Sprintf("%v", clientMsg["stake"]), 64)
			currency := fmt.Sprintf("%v", clientMsg["currency"])

			wager, err := s.engine.PlaceWager(context.Background(), userID, stake, currency)
			writeResult(conn, "wager_result", wager, err)

		case "withdraw":
			wager, err := s.engine.Withdraw(context.Background(), userID)
			writeResult(conn, "withdraw_result", wager, err)

		case "ping":
			pongJSON, _ := json.Marshal(map[string]string{"type": "pong"})
			conn.WriteMessage(websocket.TextMessage, pongJSON)
		}
	}
}

func writeResult(conn *websocket.Conn, msgType string, payload interface{}, err error) {
	msg := map[string]interface{}{"type": msgType}
	if err != nil {
		msg["error"] = err.Error()
	} else {
		msg["data"] = payload
	}
	data, _ := json.Marshal(msg)
	conn.WriteMessage(websocket.TextMessage, data)
}

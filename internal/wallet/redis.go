package wallet

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const balanceKeyPrefix = "altitude:balance:"

// RedisStore keeps balances in Redis. Debits use IncrByFloat with a
// compensating rollback when the balance would go negative, so the
// decrement itself stays a single atomic server-side operation.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func balanceKey(participantID, currency string) string {
	return fmt.Sprintf("%s%s:%s", balanceKeyPrefix, participantID, currency)
}

func (s *RedisStore) Balance(ctx context.Context, participantID, currency string) (decimal.Decimal, error) {
	v, err := s.client.Get(ctx, balanceKey(participantID, currency)).Float64()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return decimal.NewFromFloat(v), nil
}

func (s *RedisStore) Debit(ctx context.Context, participantID, currency string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	key := balanceKey(participantID, currency)
	amt := amount.InexactFloat64()

	newBalance, err := s.client.IncrByFloat(ctx, key, -amt).Result()
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("debit: %w", err)
	}
	if newBalance < 0 {
		// Rollback the decrement; the participant never had the funds.
		if _, rbErr := s.client.IncrByFloat(ctx, key, amt).Result(); rbErr != nil {
			log.Printf("[WALLET] rollback failed for %s %s: %v", participantID, currency, rbErr)
		}
		before := decimal.NewFromFloat(newBalance + amt)
		return before, before, ErrInsufficientFunds
	}

	after := decimal.NewFromFloat(newBalance)
	return after.Add(amount), after, nil
}

func (s *RedisStore) Credit(ctx context.Context, participantID, currency string, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	key := balanceKey(participantID, currency)

	newBalance, err := s.client.IncrByFloat(ctx, key, amount.InexactFloat64()).Result()
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("credit: %w", err)
	}
	after := decimal.NewFromFloat(newBalance)
	return after.Sub(amount), after, nil
}

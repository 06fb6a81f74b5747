package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sixfinger/sixfinger/internal/risk"
)

func sampleAssessment(t *testing.T) *Assessment {
	t.Helper()
	r, err := risk.NewDefaultEngine().Evaluate(botComponents(), 12)
	require.NoError(t, err)
	return &Assessment{
		Hash:       testHash(1),
		RiskScore:  r.RiskScore,
		IsBot:      r.IsBot,
		Confidence: risk.Confidence(r.RiskScore),
		Factors:    r.Factors,
	}
}

func TestRedisCache_Hit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute, quietLogger())

	want := sampleAssessment(t)
	data, err := json.Marshal(want)
	require.NoError(t, err)
	mock.ExpectGet(genKey(want.Hash)).SetVal("3")
	mock.ExpectGet(key(want.Hash, 3)).SetVal(string(data))

	got, gen, ok, err := cache.Get(context.Background(), want.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), gen)
	assert.Equal(t, want.RiskScore, got.RiskScore)
	assert.Equal(t, want.Factors.Keys(), got.Factors.Keys())
	v, _ := got.Factors.Get(risk.FactorRapidVisits)
	assert.Equal(t, 12, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_Miss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute, quietLogger())

	mock.ExpectGet(genKey(testHash(2))).RedisNil()
	mock.ExpectGet(key(testHash(2), 0)).RedisNil()

	got, gen, ok, err := cache.Get(context.Background(), testHash(2))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, gen)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_MissReportsGeneration(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute, quietLogger())

	mock.ExpectGet(genKey(testHash(2))).SetVal("7")
	mock.ExpectGet(key(testHash(2), 7)).RedisNil()

	_, gen, ok, err := cache.Get(context.Background(), testHash(2))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(7), gen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_SetAndInvalidate(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, 5*time.Minute, quietLogger())

	a := sampleAssessment(t)
	data, err := json.Marshal(a)
	require.NoError(t, err)

	mock.ExpectSet(key(a.Hash, 1), data, 5*time.Minute).SetVal("OK")
	mock.ExpectExpire(genKey(a.Hash), 10*time.Minute).SetVal(true)
	mock.ExpectIncr(genKey(a.Hash)).SetVal(2)
	mock.ExpectExpire(genKey(a.Hash), 10*time.Minute).SetVal(true)

	require.NoError(t, cache.Set(context.Background(), a, 1))
	require.NoError(t, cache.Invalidate(context.Background(), a.Hash))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_StaleWriteIsNotServed(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute, quietLogger())
	ctx := context.Background()

	a := sampleAssessment(t)
	data, err := json.Marshal(a)
	require.NoError(t, err)

	// Reader sees generation 0, a visit bumps it to 1, then the reader writes back.
	mock.ExpectGet(genKey(a.Hash)).RedisNil()
	mock.ExpectGet(key(a.Hash, 0)).RedisNil()
	mock.ExpectIncr(genKey(a.Hash)).SetVal(1)
	mock.ExpectExpire(genKey(a.Hash), 2*time.Minute).SetVal(true)
	mock.ExpectSet(key(a.Hash, 0), data, time.Minute).SetVal("OK")
	mock.ExpectExpire(genKey(a.Hash), 2*time.Minute).SetVal(true)
	mock.ExpectGet(genKey(a.Hash)).SetVal("1")
	mock.ExpectGet(key(a.Hash, 1)).RedisNil()

	_, gen, ok, err := cache.Get(ctx, a.Hash)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, cache.Invalidate(ctx, a.Hash))
	require.NoError(t, cache.Set(ctx, a, gen))

	_, gen, ok, err = cache.Get(ctx, a.Hash)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), gen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute, quietLogger())

	mock.ExpectGet(genKey(testHash(3))).RedisNil()
	mock.ExpectGet(key(testHash(3), 0)).SetVal(`{"factors":{"not_a_factor":true}}`)

	_, _, ok, err := cache.Get(context.Background(), testHash(3))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisCache_BreakerOpensAfterFailures(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute, quietLogger())
	ctx := context.Background()

	down := errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	for i := 0; i < breakerMaxFailures; i++ {
		mock.ExpectGet(genKey(testHash(4))).SetErr(down)
	}
	for i := 0; i < breakerMaxFailures; i++ {
		_, _, _, err := cache.Get(ctx, testHash(4))
		require.Error(t, err)
	}

	// Open breaker fails fast without reaching Redis.
	_, _, _, err := cache.Get(ctx, testHash(4))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_MissesDoNotTripBreaker(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute, quietLogger())
	ctx := context.Background()

	for i := 0; i < breakerMaxFailures+2; i++ {
		mock.ExpectGet(genKey(testHash(5))).RedisNil()
		mock.ExpectGet(key(testHash(5), 0)).RedisNil()
	}
	for i := 0; i < breakerMaxFailures+2; i++ {
		_, _, ok, err := cache.Get(ctx, testHash(5))
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_WithService(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute, quietLogger())
	svc, _ := newTestService()
	svc.WithCache(cache)
	ctx := context.Background()

	hash := testHash(6)
	mock.ExpectIncr(genKey(hash)).SetVal(1)
	mock.ExpectExpire(genKey(hash), 2*time.Minute).SetVal(true)
	_, _, err := svc.Submit(ctx, hash, humanComponents())
	require.NoError(t, err)

	r, err := risk.NewDefaultEngine().Evaluate(humanComponents(), 1)
	require.NoError(t, err)
	data, err := json.Marshal(&Assessment{
		Hash:       hash,
		RiskScore:  r.RiskScore,
		IsBot:      r.IsBot,
		Confidence: risk.Confidence(r.RiskScore),
		Factors:    r.Factors,
	})
	require.NoError(t, err)

	mock.ExpectGet(genKey(hash)).SetVal("1")
	mock.ExpectGet(key(hash, 1)).RedisNil()
	mock.ExpectSet(key(hash, 1), data, time.Minute).SetVal("OK")
	mock.ExpectExpire(genKey(hash), 2*time.Minute).SetVal(true)

	a, err := svc.Assess(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.RiskScore)
	assert.NoError(t, mock.ExpectationsWereMet())
}

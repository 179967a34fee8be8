package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smsrent/backend/internal/domain"
	"smsrent/backend/internal/provider"
)

func TestOrderService_BuyAndRelease(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	ctx := context.Background()

	var published []domain.Order
	env.polls.OnUpdate(func(o domain.Order) { published = append(published, o) })

	order, err := env.service.Buy(ctx, BuyOrderInput{PhoneNumber: " +1 555 123 4567 ", ServiceID: "WA", CountryID: 1})
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", order.PhoneNumber)
	assert.Equal(t, "wa", order.ServiceID)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, order.CreatedAt.Add(30*24*time.Hour), order.ExpiresAt)

	active, err := env.service.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, *order, active[0])

	p, err := env.service.Watch(ctx, order.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.fake.CallCount("messages") == 1 }, waitFor, tickFor)

	released, err := env.service.Release(ctx, order.PhoneNumber)
	require.NoError(t, err)
	require.NotNil(t, released)
	assert.Equal(t, order.ID, released.ID)
	assert.Equal(t, domain.OrderStatusCancelled, released.Status)
	assert.Equal(t, PollStateStopped, p.State())

	_, err = env.service.Get(ctx, order.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.Len(t, published, 2)
	assert.Equal(t, domain.OrderStatusPending, published[0].Status)
	assert.Equal(t, domain.OrderStatusCancelled, published[1].Status)
}

func TestOrderService_ReleaseFailureKeepsOrder(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	ctx := context.Background()
	env.seed(t, "PN1", phoneA, "wa", 1)
	env.fake.ReleaseErr = domain.NewProviderError(domain.ErrTransient, 500, 0, "internal error")

	_, err := env.service.Release(ctx, "PN1")
	assert.ErrorIs(t, err, domain.ErrTransient)

	got, err := env.service.Get(ctx, "PN1")
	require.NoError(t, err)
	assert.Equal(t, "PN1", got.ID)
}

func TestOrderService_Validation(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	ctx := context.Background()

	_, err := env.service.Get(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrOrderIDRequired)

	_, err = env.service.Release(ctx, "")
	assert.ErrorIs(t, err, domain.ErrOrderIDRequired)

	_, err = env.service.Buy(ctx, BuyOrderInput{PhoneNumber: "+15551234567", ServiceID: "nope", CountryID: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownService)

	_, err = env.service.Search(ctx, 999, "wa")
	assert.ErrorIs(t, err, domain.ErrUnknownCountry)
}

func TestOrderService_SearchAndCatalog(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	env.fake.SetAvailable("US", provider.ClassMobile, provider.CandidateNumber{
		PhoneNumber:  "+15551234567",
		Capabilities: map[string]bool{"sms": true},
	})

	numbers, err := env.service.Search(context.Background(), 1, " wa ")
	require.NoError(t, err)
	require.Len(t, numbers, 1)
	assert.Equal(t, "US", numbers[0].Country)

	assert.NotEmpty(t, env.service.Countries())
	assert.NotEmpty(t, env.service.Services())
}

func TestOrderService_ListActivePrunesExpired(t *testing.T) {
	env := newTestEnv(t, StopOnFirstCode, nil)
	ctx := context.Background()
	env.seed(t, "PN1", "+15551230001", "wa", 1)
	env.clock.Advance(20 * 24 * time.Hour)
	env.seed(t, "PN2", "+15551230002", "tg", 1)
	env.clock.Advance(11 * 24 * time.Hour)

	active, err := env.service.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "PN2", active[0].ID)

	all, err := env.orders.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

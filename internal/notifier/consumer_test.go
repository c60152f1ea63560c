package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/maltedev/wb-deal-scraper/internal/database"
	"github.com/maltedev/wb-deal-scraper/internal/events"
	"github.com/maltedev/wb-deal-scraper/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetErr(args.Error(0))
	return cmd
}

func (m *MockStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if v := args.Get(0); v != nil {
		cmd.SetVal(v.([]redis.XStream))
	}
	cmd.SetErr(args.Error(1))
	return cmd
}

func (m *MockStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetErr(args.Error(0))
	return cmd
}

func dealMessage(t *testing.T, id string) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(events.NewDealDetectedPayload(models.ProductRecord{
		Article:          "123",
		Name:             "Маска",
		CurrentPrice:     100,
		FeedbackDiscount: 180,
	}, "job-1"))
	require.NoError(t, err)

	data, err := json.Marshal(database.StreamMessage{
		ID:      id,
		Type:    string(events.EventTypeDealDetected),
		Payload: payload,
	})
	require.NoError(t, err)

	return redis.XMessage{
		ID: id,
		Values: map[string]interface{}{
			"event_type": string(events.EventTypeDealDetected),
			"data":       string(data),
		},
	}
}

func testConfig() Config {
	return Config{Stream: "stream:wb_deals", Group: "deal-notifier"}
}

func TestPollHandlesAndAcks(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)

	other := redis.XMessage{ID: "2-0", Values: map[string]interface{}{"event_type": "SOMETHING_ELSE"}}
	client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
		Stream:   "stream:wb_deals",
		Messages: []redis.XMessage{dealMessage(t, "1-0"), other},
	}}, nil)
	client.On("XAck", ctx, "stream:wb_deals", "deal-notifier", []string{"1-0"}).Return(nil)
	client.On("XAck", ctx, "stream:wb_deals", "deal-notifier", []string{"2-0"}).Return(nil)

	var got []*events.DealDetectedPayload
	c := NewConsumer(client, testConfig(), func(_ context.Context, d *events.DealDetectedPayload) error {
		got = append(got, d)
		return nil
	}, zerolog.Nop())

	require.NoError(t, c.Poll(ctx))

	require.Len(t, got, 1)
	assert.Equal(t, "123", got[0].Article)
	assert.Equal(t, "job-1", got[0].JobID)
	assert.InDelta(t, 80.0, got[0].DiscountDifference, 0.001)
	client.AssertExpectations(t)
}

func TestPollLeavesFailedDealsPending(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)
	client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream{{
		Stream:   "stream:wb_deals",
		Messages: []redis.XMessage{dealMessage(t, "1-0")},
	}}, nil)

	c := NewConsumer(client, testConfig(), func(context.Context, *events.DealDetectedPayload) error {
		return errors.New("downstream unavailable")
	}, zerolog.Nop())

	require.NoError(t, c.Poll(ctx))
	client.AssertNotCalled(t, "XAck", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPollEmptyRead(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)
	client.On("XReadGroup", ctx, mock.Anything).Return(nil, redis.Nil)

	c := NewConsumer(client, testConfig(), LogDeal(zerolog.Nop()), zerolog.Nop())
	assert.NoError(t, c.Poll(ctx))
}

func TestRunFailsWhenGroupCannotBeCreated(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)
	client.On("XGroupCreateMkStream", ctx, "stream:wb_deals", "deal-notifier", "0").Return(errors.New("NOAUTH"))

	c := NewConsumer(client, testConfig(), LogDeal(zerolog.Nop()), zerolog.Nop())
	assert.Error(t, c.Run(ctx))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := new(MockStreamClient)
	client.On("XGroupCreateMkStream", ctx, "stream:wb_deals", "deal-notifier", "0").
		Return(errors.New("BUSYGROUP Consumer Group name already exists"))
	client.On("XReadGroup", ctx, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(nil, context.Canceled)

	c := NewConsumer(client, testConfig(), LogDeal(zerolog.Nop()), zerolog.Nop())
	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
}

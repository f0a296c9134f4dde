package events_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"famfin/internal/events"
	"famfin/internal/logger"
)

func init() {
	logger.Init("test")
}

func TestFromJSON(t *testing.T) {
	t.Run("round_trip", func(t *testing.T) {
		e := events.New(events.TransactionChanged)
		e.TransactionID = "tx-1"
		e.ProjectionIDs = []string{"ob_2025M01", "ob_2025M02"}

		body, err := e.ToJSON()
		require.NoError(t, err)

		got, err := events.FromJSON(body)
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, e.ProjectionIDs, got.ProjectionIDs)
		assert.True(t, e.OccurredAt.Equal(got.OccurredAt))
	})

	t.Run("rejects_unknown_type", func(t *testing.T) {
		_, err := events.FromJSON([]byte(`{"type":"budget.exploded"}`))
		assert.Error(t, err)
	})

	t.Run("rejects_obligation_event_without_id", func(t *testing.T) {
		_, err := events.FromJSON([]byte(`{"type":"obligation.created"}`))
		assert.Error(t, err)
	})

	t.Run("rejects_malformed", func(t *testing.T) {
		_, err := events.FromJSON([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestDispatcher_Publish(t *testing.T) {
	ctrl := gomock.NewController(t)

	failing := events.NewMockHandler(ctrl)
	next := events.NewMockHandler(ctrl)

	e := events.New(events.ObligationCreated)
	e.ObligationID = "ob-1"

	gomock.InOrder(
		failing.EXPECT().Handle(gomock.Any(), e).Return(errors.New("boom")),
		next.EXPECT().Handle(gomock.Any(), e).Return(nil),
	)

	d := events.NewDispatcher(failing)
	d.Subscribe(next)

	assert.NoError(t, d.Publish(context.Background(), e), "handler failures must not reach the publisher")
}

func TestHandlerFunc(t *testing.T) {
	var got events.Event
	h := events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got = e
		return nil
	})
	e := events.New(events.ObligationUpdated)
	require.NoError(t, h.Handle(context.Background(), e))
	assert.Equal(t, e.ID, got.ID)
}

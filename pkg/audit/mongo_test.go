package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMongoRecorder_Record(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("stamps and inserts entry", func(mt *mtest.T) {
		rec := newMongoRecorder(mt.Coll, "storefront", zap.NewNop())
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		rec.Record(context.Background(), Entry{
			Action:   ActionPaymentStatusChanged,
			EntityID: "pay-1",
			Actor:    "webhook",
			Data:     map[string]interface{}{"to": "success"},
		})
		rec.pending.Wait()

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "insert", started.CommandName)

		docs, err := started.Command.LookupErr("documents")
		require.NoError(mt, err)
		values, err := docs.Array().Values()
		require.NoError(mt, err)
		require.Len(mt, values, 1)
		doc := values[0].Document()
		assert.Equal(mt, "storefront", doc.Lookup("service").StringValue())
		assert.Equal(mt, ActionPaymentStatusChanged, doc.Lookup("action").StringValue())
		assert.Equal(mt, "pay-1", doc.Lookup("entity_id").StringValue())
		assert.False(mt, doc.Lookup("created_at").Time().IsZero())
	})

	mt.Run("write failure is logged not returned", func(mt *mtest.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		rec := newMongoRecorder(mt.Coll, "storefront", zap.New(core))
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		rec.Record(context.Background(), Entry{Action: ActionOrderCreated, EntityID: "order-1"})
		rec.pending.Wait()

		failed := logs.FilterMessage("Failed to write audit log").All()
		require.Len(mt, failed, 1)
		assert.Equal(mt, "order-1", failed[0].ContextMap()["entity_id"])
	})
}

func TestMongoRecorder_History(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes newest first", func(mt *mtest.T) {
		rec := newMongoRecorder(mt.Coll, "storefront", zap.NewNop())
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		newer := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "b"},
				{Key: "service", Value: "storefront"},
				{Key: "action", Value: ActionPaymentStatusChanged},
				{Key: "entity_id", Value: "pay-1"},
				{Key: "created_at", Value: newer},
			},
			bson.D{
				{Key: "_id", Value: "a"},
				{Key: "service", Value: "storefront"},
				{Key: "action", Value: ActionPaymentIntentCreated},
				{Key: "entity_id", Value: "pay-1"},
				{Key: "created_at", Value: newer.Add(-time.Hour)},
			},
		))

		entries, err := rec.History(context.Background(), "pay-1", 10)
		require.NoError(mt, err)
		require.Len(mt, entries, 2)
		assert.Equal(mt, ActionPaymentStatusChanged, entries[0].Action)
		assert.Equal(mt, newer, entries[0].CreatedAt.UTC())
		assert.Equal(mt, ActionPaymentIntentCreated, entries[1].Action)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "find", started.CommandName)
		assert.Equal(mt, "pay-1", started.Command.Lookup("filter", "entity_id").StringValue())
		assert.Equal(mt, int64(10), started.Command.Lookup("limit").Int64())
	})

	mt.Run("query failure", func(mt *mtest.T) {
		rec := newMongoRecorder(mt.Coll, "storefront", zap.NewNop())
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad query",
			Name:    "BadValue",
		}))

		_, err := rec.History(context.Background(), "pay-1", 10)
		assert.ErrorContains(mt, err, "failed to query audit logs")
	})
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	r.Record(context.Background(), Entry{Action: ActionOrderCreated})
	entries, err := r.History(context.Background(), "x", 5)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

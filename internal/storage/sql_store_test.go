package storage_test

import (
	"testing"
	"time"

	"github.com/ignatij/shopfloor/internal/testutil"
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/ignatij/shopfloor/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	store := testutil.SetupSQLite(t)
	runStoreTests(t, store)
}

func TestPostgresStore(t *testing.T) {
	runStoreTests(t, testutil.SetupPostgres(t))
}

func runStoreTests(t *testing.T, root storage.Store) {
	// Helper to create a transactional store rolled back after each test
	newTxStore := func(t *testing.T) storage.Store {
		txStore, err := root.Begin()
		require.NoError(t, err)
		t.Cleanup(func() { txStore.Rollback() })
		return txStore
	}

	t.Run("SaveJobCard", func(t *testing.T) {
		store := newTxStore(t)
		card := testutil.NewOrder("PO-1", 100, "cutting")[0]
		require.NoError(t, store.SaveJobCard(card))

		saved, err := store.GetJobCard(card.ID)
		require.NoError(t, err)
		assert.Equal(t, card.ProductionOrder, saved.ProductionOrder)
		assert.Equal(t, card.Operation, saved.Operation)
		assert.Equal(t, 1, saved.Sequence)
		assert.Equal(t, "100", saved.QuantityToManufacture.String())
		assert.Equal(t, "0", saved.CompletedQuantity.String())
		assert.Equal(t, models.PlannedJobCardStatus, saved.Status)
		assert.Nil(t, saved.ActualStartTime)
		assert.False(t, saved.UpdatedAt.IsZero())
	})

	t.Run("DuplicateSequence", func(t *testing.T) {
		store := newTxStore(t)
		cards := testutil.NewOrder("PO-1", 100, "cutting", "welding")
		cards[1].Sequence = 1
		require.NoError(t, store.SaveJobCard(cards[0]))
		assert.Error(t, store.SaveJobCard(cards[1]))
	})

	t.Run("GetNonExistingJobCard", func(t *testing.T) {
		store := newTxStore(t)
		_, err := store.GetJobCard("missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ListJobCards filters and orders by sequence", func(t *testing.T) {
		store := newTxStore(t)
		cards := append(testutil.NewOrder("PO-2", 5, "a", "b"), testutil.NewOrder("PO-1", 10, "a", "b", "c")...)
		cards[3].Operator = "operator-2"
		for i := len(cards) - 1; i >= 0; i-- {
			require.NoError(t, store.SaveJobCard(cards[i]))
		}

		all, err := store.ListJobCards(models.JobCardFilter{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, []string{"PO-1-1", "PO-1-2", "PO-1-3", "PO-2-1", "PO-2-2"},
			[]string{all[0].ID, all[1].ID, all[2].ID, all[3].ID, all[4].ID})

		byOrder, err := store.ListJobCards(models.JobCardFilter{ProductionOrder: "PO-2"})
		require.NoError(t, err)
		assert.Len(t, byOrder, 2)

		byOperator, err := store.ListJobCards(models.JobCardFilter{Operator: "operator-2"})
		require.NoError(t, err)
		require.Len(t, byOperator, 1)
		assert.Equal(t, "PO-1-2", byOperator[0].ID)

		none, err := store.ListJobCards(models.JobCardFilter{ID: "missing"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("UpdateJobCard", func(t *testing.T) {
		store := newTxStore(t)
		card := testutil.NewOrder("PO-1", 100, "cutting")[0]
		require.NoError(t, store.SaveJobCard(card))

		start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		status := models.InProgressJobCardStatus
		qty := decimal.RequireFromString("12.5")
		seconds := int64(42)
		updated, err := store.UpdateJobCard(card.ID, models.JobCardPatch{
			Status:             &status,
			CompletedQuantity:  &qty,
			ActualStartTime:    &start,
			AccumulatedSeconds: &seconds,
		})
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)

		reloaded, err := store.GetJobCard(card.ID)
		require.NoError(t, err)
		assert.Equal(t, status, reloaded.Status)
		assert.Equal(t, "12.5", reloaded.CompletedQuantity.String())
		assert.Equal(t, int64(42), reloaded.AccumulatedSeconds)
		require.NotNil(t, reloaded.ActualStartTime)
		assert.True(t, start.Equal(*reloaded.ActualStartTime))
		assert.Nil(t, reloaded.ActualEndTime)
	})

	t.Run("UpdateNonExistingJobCard", func(t *testing.T) {
		store := newTxStore(t)
		seconds := int64(1)
		_, err := store.UpdateJobCard("missing", models.JobCardPatch{AccumulatedSeconds: &seconds})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Logs", func(t *testing.T) {
		store := newTxStore(t)
		card := testutil.NewOrder("PO-1", 100, "cutting")[0]
		require.NoError(t, store.SaveJobCard(card))

		at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
		require.NoError(t, store.SaveLog(models.JobCardLog{
			ID: "00000000-0000-0000-0000-000000000002", JobCardID: card.ID, Action: "save",
			Status: models.InProgressJobCardStatus, CompletedQuantity: testutil.Qty(10), AccumulatedSeconds: 60,
			LoggedAt: at.Add(time.Minute),
		}))
		require.NoError(t, store.SaveLog(models.JobCardLog{
			ID: "00000000-0000-0000-0000-000000000001", JobCardID: card.ID, Action: "start",
			Status: models.InProgressJobCardStatus, CompletedQuantity: decimal.Zero, LoggedAt: at,
		}))

		logs, err := store.ListLogs(card.ID)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "start", logs[0].Action)
		assert.Equal(t, "save", logs[1].Action)
		assert.Equal(t, "10", logs[1].CompletedQuantity.String())
		assert.True(t, at.Equal(logs[0].LoggedAt))

		empty, err := store.ListLogs("missing")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Rollback discards writes", func(t *testing.T) {
		txStore, err := root.Begin()
		require.NoError(t, err)
		require.NoError(t, txStore.SaveJobCard(testutil.NewOrder("PO-9", 1, "a")[0]))
		require.NoError(t, txStore.Rollback())

		_, err = root.GetJobCard("PO-9-1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

package jobcard_test

import (
	"errors"
	"testing"

	"github.com/ignatij/shopfloor/internal/testutil"
	"github.com/ignatij/shopfloor/pkg/jobcard"
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("only the first stage is actionable before any output", func(t *testing.T) {
		cards := testutil.NewOrder("PO-1", 100, "cutting", "welding", "painting")

		res, err := jobcard.Resolve(cards)
		require.NoError(t, err)

		first := res.Gates["PO-1-1"]
		assert.True(t, first.Actionable)
		assert.Equal(t, "", first.Predecessor)
		assert.Equal(t, "100", first.AllowedQuantity.String())

		second := res.Gates["PO-1-2"]
		assert.False(t, second.Actionable)
		assert.Equal(t, "PO-1-1", second.Predecessor)
		assert.Equal(t, "0", second.AllowedQuantity.String())

		assert.False(t, res.Gates["PO-1-3"].Actionable)
		assert.Empty(t, res.Inconsistencies)
	})

	t.Run("predecessor output releases the next stage", func(t *testing.T) {
		cards := testutil.NewOrder("PO-1", 100, "cutting", "welding", "painting")
		cards[0].CompletedQuantity = testutil.Qty(40)
		cards[0].Status = models.InProgressJobCardStatus

		res, err := jobcard.Resolve(cards)
		require.NoError(t, err)

		assert.True(t, res.Gates["PO-1-2"].Actionable)
		assert.Equal(t, "40", res.Gates["PO-1-2"].AllowedQuantity.String())
		assert.False(t, res.Gates["PO-1-3"].Actionable)
	})

	t.Run("sequence decides order, not slice position", func(t *testing.T) {
		cards := testutil.NewOrder("PO-1", 10, "a", "b", "c")
		cards[0].Sequence, cards[1].Sequence, cards[2].Sequence = 30, 20, 10
		cards[2].CompletedQuantity = testutil.Qty(4)

		res, err := jobcard.Resolve(cards)
		require.NoError(t, err)

		assert.Equal(t, "", res.Gates["PO-1-3"].Predecessor)
		assert.Equal(t, "PO-1-3", res.Gates["PO-1-2"].Predecessor)
		assert.Equal(t, "4", res.Gates["PO-1-2"].AllowedQuantity.String())
		assert.Equal(t, "PO-1-2", res.Gates["PO-1-1"].Predecessor)
	})

	t.Run("orders are gated independently", func(t *testing.T) {
		cards := append(testutil.NewOrder("PO-1", 10, "a", "b"), testutil.NewOrder("PO-2", 5, "a", "b")...)
		cards[0].CompletedQuantity = testutil.Qty(3)

		res, err := jobcard.Resolve(cards)
		require.NoError(t, err)

		assert.True(t, res.Gates["PO-1-2"].Actionable)
		assert.False(t, res.Gates["PO-2-2"].Actionable)
		assert.True(t, res.Gates["PO-2-1"].Actionable)
	})

	t.Run("completed stages are not actionable", func(t *testing.T) {
		cards := testutil.NewOrder("PO-1", 10, "a", "b")
		cards[0].Status = models.CompletedJobCardStatus
		cards[0].CompletedQuantity = testutil.Qty(10)

		res, err := jobcard.Resolve(cards)
		require.NoError(t, err)

		assert.False(t, res.Gates["PO-1-1"].Actionable)
		assert.True(t, res.Gates["PO-1-2"].Actionable)
	})

	t.Run("duplicate sequence is an error", func(t *testing.T) {
		cards := testutil.NewOrder("PO-1", 10, "a", "b")
		cards[1].Sequence = 1

		_, err := jobcard.Resolve(cards)
		assert.Error(t, err)
	})

	t.Run("reports stages ahead of their predecessor", func(t *testing.T) {
		cards := testutil.NewOrder("PO-1", 100, "a", "b")
		cards[0].CompletedQuantity = testutil.Qty(40)
		cards[1].CompletedQuantity = testutil.Qty(50)

		res, err := jobcard.Resolve(cards)
		require.NoError(t, err)

		require.Len(t, res.Inconsistencies, 1)
		inc := res.Inconsistencies[0]
		assert.Equal(t, "PO-1-2", inc.JobCardID)
		assert.Equal(t, "PO-1-1", inc.Predecessor)
		assert.True(t, errors.Is(inc, jobcard.ErrInconsistent))
	})
}

func TestUnlocked(t *testing.T) {
	cards := testutil.NewOrder("PO-1", 100, "a", "b", "c")
	before, err := jobcard.Resolve(cards)
	require.NoError(t, err)

	cards[0].CompletedQuantity = testutil.Qty(1)
	after, err := jobcard.Resolve(cards)
	require.NoError(t, err)

	assert.Equal(t, []string{"PO-1-2"}, jobcard.Unlocked(before, after))
	assert.Empty(t, jobcard.Unlocked(after, after))
}

package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/ignatij/shopfloor/internal/testutil"
	"github.com/ignatij/shopfloor/pkg/jobcard"
	"github.com/ignatij/shopfloor/pkg/models"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRender(t *testing.T) {
	order := testutil.NewOrder("PO-1", 100, "cutting", "welding", "painting")

	t.Run("job cards", func(t *testing.T) {
		cards := order[:2]
		cards[0].Status = models.InProgressJobCardStatus
		cards[0].CompletedQuantity = testutil.Qty(40)
		cards[0].AccumulatedSeconds = 3725

		var buf bytes.Buffer
		RenderJobCards(&buf, cards)
		golden(t).Assert(t, "job_cards", buf.Bytes())
	})

	t.Run("stages", func(t *testing.T) {
		cards := testutil.NewOrder("PO-1", 100, "cutting", "welding", "painting")
		done := testutil.NewOrder("PO-2", 50, "cutting")[0]
		done.Status = models.CompletedJobCardStatus
		done.CompletedQuantity = testutil.Qty(50)
		cards[0].Status = models.InProgressJobCardStatus
		cards[0].CompletedQuantity = testutil.Qty(40)
		cards[1].Status = models.OnHoldJobCardStatus
		cards[1].CompletedQuantity = decimal.RequireFromString("12.5")

		stages := []jobcard.StageView{
			{Card: cards[0], AllowedQuantity: testutil.Qty(100), Actionable: true, ElapsedSeconds: 125, Running: true},
			{Card: cards[1], AllowedQuantity: testutil.Qty(40), Actionable: true, ElapsedSeconds: 60, Unsynced: true},
			{Card: cards[2], AllowedQuantity: decimal.Zero},
			{Card: done, AllowedQuantity: testutil.Qty(50), ElapsedSeconds: 7200},
		}
		var buf bytes.Buffer
		RenderStages(&buf, stages)
		golden(t).Assert(t, "stages", buf.Bytes())
	})

	t.Run("orders", func(t *testing.T) {
		orders := []models.ProductionOrder{
			{ID: "PO-1", QuantityToManufacture: testutil.Qty(100), ProducedQuantity: decimal.Zero, Stages: 3, TotalSeconds: 185},
			{ID: "PO-2", QuantityToManufacture: testutil.Qty(50), ProducedQuantity: testutil.Qty(50), Stages: 1, CompletedStages: 1, TotalSeconds: 7200},
		}
		var buf bytes.Buffer
		RenderOrders(&buf, orders)
		golden(t).Assert(t, "orders", buf.Bytes())
	})

	t.Run("logs", func(t *testing.T) {
		at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
		logs := []models.JobCardLog{
			{JobCardID: "PO-1-1", Action: "start", Status: models.InProgressJobCardStatus, CompletedQuantity: decimal.Zero, LoggedAt: at},
			{JobCardID: "PO-1-1", Action: "save", Status: models.InProgressJobCardStatus, CompletedQuantity: testutil.Qty(40), AccumulatedSeconds: 90, LoggedAt: at.Add(90 * time.Second)},
			{JobCardID: "PO-1-1", Action: "complete", Status: models.CompletedJobCardStatus, CompletedQuantity: testutil.Qty(95), AccumulatedSeconds: 120, LoggedAt: at.Add(2 * time.Minute)},
		}
		var buf bytes.Buffer
		RenderLogs(&buf, logs)
		golden(t).Assert(t, "logs", buf.Bytes())
	})

	t.Run("result", func(t *testing.T) {
		card := order[0]
		card.Status = models.CompletedJobCardStatus
		card.CompletedQuantity = testutil.Qty(95)
		card.AccumulatedSeconds = 120
		res := jobcard.Result{
			Card:     card,
			Warning:  "completed 95 of 100 allowed",
			Unlocked: []string{"PO-1-2", "PO-1-3"},
		}
		var buf bytes.Buffer
		RenderResult(&buf, jobcard.ActionComplete, res)
		golden(t).Assert(t, "result", buf.Bytes())
	})

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		RenderJobCards(&buf, nil)
		RenderStages(&buf, nil)
		RenderOrders(&buf, nil)
		RenderLogs(&buf, nil)
		assert.Equal(t, "No job cards found.\nNo job cards loaded.\nNo production orders found.\nNo log entries found.\n", buf.String())
	})
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:00", formatDuration(0))
	assert.Equal(t, "00:01:30", formatDuration(90))
	assert.Equal(t, "27:46:40", formatDuration(100000))
}

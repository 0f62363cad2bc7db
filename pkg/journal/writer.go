package journal

import (
	"context"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"

	"github.com/evergrid/creditbook/pkg/logging"
)

const writerBatchSize = 100

// Writer drains journal events into the SQL repo. Events queue in a
// deque so a slow database never blocks the ledger path; batches flush
// on an interval.
type Writer struct {
	repo     IOrderEvent
	events   <-chan *OrderEvent
	interval time.Duration
	log      *logging.Logger

	pending deque.Deque[*OrderEvent]
}

func NewWriter(repo IOrderEvent, j *Journal, interval time.Duration, log *logging.Logger) *Writer {
	return &Writer{
		repo:     repo,
		events:   j.Subscribe(),
		interval: interval,
		log:      log,
	}
}

func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return
		case ev := <-w.events:
			w.pending.PushBack(ev)
			if w.pending.Len() >= writerBatchSize {
				w.flush(ctx)
			}
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	if w.pending.Len() == 0 {
		return
	}

	batch := make([]*OrderEvent, 0, w.pending.Len())
	for w.pending.Len() > 0 {
		batch = append(batch, w.pending.PopFront())
	}

	if _, err := w.repo.BulkCreate(ctx, batch); err != nil {
		w.log.Error(ctx, "persist order events failed",
			zap.Int("count", len(batch)), zap.Error(err))
		// requeue at the front so ordering survives a retry
		for i := len(batch) - 1; i >= 0; i-- {
			w.pending.PushFront(batch[i])
		}
	}
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/absmach/flcoord/pkg/storage"
)

const defaultPageSize = 100

var (
	ErrOutOfOrder   = pkgerrors.New("out_of_order", "round is not greater than the last recorded round", pkgerrors.ErrConflict)
	ErrInvalidRound = pkgerrors.New("invalid_round", "round must be at least 1", pkgerrors.ErrValidation)
	ErrEmptySession = pkgerrors.New("invalid_session", "empty session id", pkgerrors.ErrValidation)
	ErrNoRecords    = pkgerrors.New("no_records", "no metrics recorded", pkgerrors.ErrNotFound)
)

// Record is one row of the append-only metrics history.
type Record = fl.RoundMetrics

// Gap is a run of rounds that were skipped between two appends.
type Gap = fl.RoundGap

// Ledger keeps per-session round metrics strictly increasing by round.
type Ledger struct {
	mu       sync.Mutex
	last     map[string]uint64
	gaps     map[string][]Gap
	repo     storage.MetricsRepository
	pageSize uint64
	logger   *slog.Logger
}

func New(repo storage.MetricsRepository, logger *slog.Logger) *Ledger {
	return &Ledger{
		last:     make(map[string]uint64),
		gaps:     make(map[string][]Gap),
		repo:     repo,
		pageSize: defaultPageSize,
		logger:   logger,
	}
}

func (l *Ledger) Append(ctx context.Context, r Record) error {
	if r.SessionID == "" {
		return ErrEmptySession
	}
	if r.Round < 1 {
		return ErrInvalidRound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.lastRound(ctx, r.SessionID)
	if err != nil {
		return err
	}
	if r.Round <= last {
		return fmt.Errorf("%w: session %s round %d after %d", ErrOutOfOrder, r.SessionID, r.Round, last)
	}

	if err := l.repo.Append(ctx, r); err != nil {
		if errors.Is(err, storage.ErrEntityExists) {
			return errors.Join(ErrOutOfOrder, err)
		}

		return fmt.Errorf("failed to append metrics: %w", err)
	}

	if r.Round > last+1 {
		gap := Gap{After: last, Before: r.Round}
		l.gaps[r.SessionID] = append(l.gaps[r.SessionID], gap)
		l.logger.Warn("metrics ledger gap",
			slog.String("session_id", r.SessionID),
			slog.Uint64("after", gap.After),
			slog.Uint64("before", gap.Before),
		)
	}
	l.last[r.SessionID] = r.Round

	return nil
}

// Latest returns the newest record of a session, or across all sessions
// when sessionID is empty.
func (l *Ledger) Latest(ctx context.Context, sessionID string) (Record, error) {
	r, err := l.repo.Latest(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return Record{}, ErrNoRecords
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to read latest metrics: %w", err)
	}

	return r, nil
}

// History walks the session's records in ascending round order, fetching
// one page at a time. Each call to the returned sequence starts over.
func (l *Ledger) History(ctx context.Context, sessionID string) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var offset uint64
		for {
			if err := ctx.Err(); err != nil {
				yield(Record{}, err)

				return
			}
			page, total, err := l.repo.List(ctx, sessionID, offset, l.pageSize)
			if err != nil {
				yield(Record{}, fmt.Errorf("failed to list metrics: %w", err))

				return
			}
			for _, r := range page {
				if !yield(r, nil) {
					return
				}
			}
			offset += uint64(len(page))
			if len(page) == 0 || offset >= total {
				return
			}
		}
	}
}

// Page returns a bounded slice of the history along with the total count
// and the gaps seen for the session.
func (l *Ledger) Page(ctx context.Context, sessionID string, offset, limit uint64) (fl.RoundMetricsPage, error) {
	records, total, err := l.repo.List(ctx, sessionID, offset, limit)
	if err != nil {
		return fl.RoundMetricsPage{}, fmt.Errorf("failed to list metrics: %w", err)
	}
	if records == nil {
		records = []Record{}
	}

	return fl.RoundMetricsPage{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Records: records,
		Gaps:    l.Gaps(sessionID),
	}, nil
}

// Gaps reports skipped round ranges observed since startup.
func (l *Ledger) Gaps(sessionID string) []Gap {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.gaps[sessionID]) == 0 {
		return nil
	}

	return append([]Gap(nil), l.gaps[sessionID]...)
}

func (l *Ledger) lastRound(ctx context.Context, sessionID string) (uint64, error) {
	if last, ok := l.last[sessionID]; ok {
		return last, nil
	}

	r, err := l.repo.Latest(ctx, sessionID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		l.last[sessionID] = 0
	case err != nil:
		return 0, fmt.Errorf("failed to load last round: %w", err)
	default:
		l.last[sessionID] = r.Round
	}

	return l.last[sessionID], nil
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/sentinel"
)

// LedgerStore keeps ledger entries and their outbox rows in memory.
type LedgerStore struct {
	b *Backend
}

func copyEntry(e domain.LedgerEntry) domain.LedgerEntry {
	e.DeviceIDs = append([]id.DeviceID(nil), e.DeviceIDs...)
	if e.AuthenticatedGroupID != nil {
		g := *e.AuthenticatedGroupID
		e.AuthenticatedGroupID = &g
	}
	return e
}

func (s *LedgerStore) Append(ctx context.Context, entry domain.LedgerEntry, payload []byte) error {
	return s.b.write(ctx, func(st *state) error {
		for _, e := range st.ledger {
			if e.MigrationID == entry.MigrationID {
				return fmt.Errorf("ledger entry %s: %w", entry.MigrationID, sentinel.ErrAlreadyUsed)
			}
		}
		st.ledger = append(st.ledger, copyEntry(entry))
		st.outbox = append(st.outbox, outboxRow{msg: domain.OutboxMessage{
			ID:          uuid.NewString(),
			MigrationID: entry.MigrationID,
			Payload:     append([]byte(nil), payload...),
			CreatedAt:   entry.CreatedAt,
		}})
		return nil
	})
}

func matches(e domain.LedgerEntry, f domain.LedgerFilter) bool {
	if f.UserID != nil && e.UserID != *f.UserID {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

// Query returns matching entries newest first and the total match count.
func (s *LedgerStore) Query(ctx context.Context, filter domain.LedgerFilter) ([]domain.LedgerEntry, int, error) {
	var all []domain.LedgerEntry
	err := s.b.read(ctx, func(st *state) error {
		for _, e := range st.ledger {
			if matches(e, filter) {
				all = append(all, copyEntry(e))
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	if filter.Offset >= total {
		return []domain.LedgerEntry{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return all[filter.Offset:end], total, nil
}

// PendingOutbox returns unpublished rows oldest first.
func (s *LedgerStore) PendingOutbox(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	err := s.b.read(ctx, func(st *state) error {
		for _, row := range st.outbox {
			if row.publishedAt != nil {
				continue
			}
			out = append(out, row.msg)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *LedgerStore) MarkOutboxPublished(ctx context.Context, ids []string, at time.Time) error {
	want := make(map[string]struct{}, len(ids))
	for _, v := range ids {
		want[v] = struct{}{}
	}
	return s.b.write(ctx, func(st *state) error {
		for i := range st.outbox {
			if _, ok := want[st.outbox[i].msg.ID]; ok && st.outbox[i].publishedAt == nil {
				published := at
				st.outbox[i].publishedAt = &published
			}
		}
		return nil
	})
}

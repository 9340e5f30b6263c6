package kv

import (
	"bytes"
	"context"

	"github.com/Dhenz14/HivePoA-sub000/shared/bytesutil"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

// SaveContractEvent appends an event to a contract's audit stream. The
// sequence number is assigned from the bucket's monotonic counter.
func (s *Store) SaveContractEvent(ctx context.Context, event *types.ContractEvent) error {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.SaveContractEvent")
	defer span.End()
	if event.ContractID == "" {
		return errors.New("contract ID cannot be empty")
	}
	return s.update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(contractEventsBucket)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		event.Seq = seq
		enc, err := encode(ctx, event)
		if err != nil {
			return err
		}
		key := append(ownerIndexPrefix(event.ContractID), bytesutil.Uint64ToBytesBigEndian(seq)...)
		return bkt.Put(key, enc)
	})
}

// ContractEvents returns the full event stream for a contract in append
// order.
func (s *Store) ContractEvents(ctx context.Context, contractID string) ([]*types.ContractEvent, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.ContractEvents")
	defer span.End()
	var events []*types.ContractEvent
	err := s.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(contractEventsBucket).Cursor()
		prefix := ownerIndexPrefix(contractID)
		for k, enc := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, enc = c.Next() {
			event := &types.ContractEvent{}
			if err := decode(ctx, enc, event); err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	return events, err
}

// SaveAuditRecord appends a payout audit row. One row is written per flush
// broadcast attempt, whatever its outcome.
func (s *Store) SaveAuditRecord(ctx context.Context, record *types.AuditRecord) error {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.SaveAuditRecord")
	defer span.End()
	if record.ID == "" {
		return errors.New("audit record ID cannot be empty")
	}
	enc, err := encode(ctx, record)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(auditRecordsBucket).Put([]byte(record.ID), enc); err != nil {
			return err
		}
		idx := ownerIndexKey(record.HiveUsername, uint64(record.CreatedAt.UnixNano()), record.ID)
		return tx.Bucket(auditAccountIndicesBucket).Put(idx, []byte(record.ID))
	})
}

// AuditRecords returns up to limit payout audit rows for an account, newest
// first.
func (s *Store) AuditRecords(ctx context.Context, hiveUsername string, limit int) ([]*types.AuditRecord, error) {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.AuditRecords")
	defer span.End()
	if limit <= 0 {
		return nil, nil
	}
	var records []*types.AuditRecord
	err := s.view(func(tx *bolt.Tx) error {
		rows := tx.Bucket(auditRecordsBucket)
		c := tx.Bucket(auditAccountIndicesBucket).Cursor()
		prefix := ownerIndexPrefix(hiveUsername)
		k, v := seekLastOfPrefix(c, prefix)
		for ; k != nil && bytes.HasPrefix(k, prefix) && len(records) < limit; k, v = c.Prev() {
			enc := rows.Get(v)
			if enc == nil {
				continue
			}
			record := &types.AuditRecord{}
			if err := decode(ctx, enc, record); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

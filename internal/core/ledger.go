package core

import (
	"bloodsync/internal/blob"
	"bloodsync/internal/events"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrNoLedgerStore is returned when ExportLedger runs without a blob store.
var ErrNoLedgerStore = errors.New("ledger export store not configured")

// LedgerPrefix is the blob key prefix for ledger exports.
const LedgerPrefix = "ledger/"

// LedgerExport describes a written ledger export.
type LedgerExport struct {
	Key     string    `json:"key"`
	Entries int       `json:"entries"`
	Info    blob.Info `json:"info"`
}

// LedgerKey names the export written at the service's current time.
func (s *Service) LedgerKey() string {
	return LedgerPrefix + "donations-" + s.now().Format("20060102T150405Z") + ".jsonl"
}

// ExportLedger writes the donation ledger as JSON lines, oldest entry first,
// to the configured blob store.
func (s *Service) ExportLedger(ctx context.Context) (LedgerExport, error) {
	var out LedgerExport
	err := s.run(ctx, opExportLedger, func(ctx context.Context) (string, error) {
		if s.ledger == nil {
			return "", ErrNoLedgerStore
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		err := s.store.View(ctx, func(view TransactionView) error {
			for _, d := range view.ListDonations() {
				if err := enc.Encode(d); err != nil {
					return fmt.Errorf("encode donation %s: %w", d.ID, err)
				}
				out.Entries++
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		out.Key = s.LedgerKey()
		info, err := s.ledger.Put(ctx, out.Key, &buf, blob.PutOptions{
			ContentType: "application/x-ndjson",
			Metadata:    map[string]string{"entries": strconv.Itoa(out.Entries)},
		})
		if err != nil {
			return out.Key, fmt.Errorf("write ledger export: %w", err)
		}
		out.Info = info
		return out.Key, nil
	})
	if err != nil {
		return LedgerExport{}, err
	}
	s.publish(ctx, events.LedgerExported, out.Key, map[string]any{"entries": out.Entries})
	return out, nil
}

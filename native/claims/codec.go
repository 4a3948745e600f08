package claims

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"airdrop/crypto"
)

const (
	columnAddress       = "wallet_address"
	columnAmount        = "claim_amount"
	columnState         = "state"
	columnReservedAt    = "reserved_at"
	columnReservationID = "reservation_id"
)

var snapshotHeader = []string{columnAddress, columnAmount, columnState, columnReservedAt, columnReservationID}

// LoadReport summarises a bulk import.
type LoadReport struct {
	Rows       int `json:"rows"`
	Loaded     int `json:"loaded"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
}

// DecodeAllocations reads CSV rows with a header naming at least wallet_address and
// claim_amount. Optional state, reserved_at and reservation_id columns restore a snapshot.
// Malformed rows are logged and skipped; a repeated identity replaces the earlier row.
// Only an unreadable source or a missing required column fails the whole decode.
func DecodeAllocations(r io.Reader, decimals uint8, logger *slog.Logger) ([]Entry, LoadReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var report LoadReport
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, report, fmt.Errorf("allocation source is empty")
	}
	if err != nil {
		return nil, report, fmt.Errorf("read allocation header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{columnAddress, columnAmount} {
		if _, ok := columns[required]; !ok {
			return nil, report, fmt.Errorf("allocation header missing %q column", required)
		}
	}

	entries := make([]Entry, 0)
	index := make(map[string]int)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				report.Rows++
				report.Skipped++
				logger.Warn("skipping malformed allocation row", slog.Int("line", parseErr.Line), slog.String("error", err.Error()))
				continue
			}
			return nil, report, fmt.Errorf("read allocation row: %w", err)
		}
		if isBlank(record) {
			continue
		}
		report.Rows++
		line, _ := reader.FieldPos(0)
		entry, err := decodeRow(record, columns, decimals)
		if err != nil {
			report.Skipped++
			logger.Warn("skipping allocation row", slog.Int("line", line), slog.String("error", err.Error()))
			continue
		}
		if pos, ok := index[entry.CanonicalID]; ok {
			report.Duplicates++
			logger.Warn("duplicate allocation identity, keeping the later row",
				slog.Int("line", line), slog.String("address", entry.CanonicalID))
			entries[pos] = entry
			continue
		}
		index[entry.CanonicalID] = len(entries)
		entries = append(entries, entry)
	}
	report.Loaded = len(entries)
	return entries, report, nil
}

func decodeRow(record []string, columns map[string]int, decimals uint8) (Entry, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	original := field(columnAddress)
	canonical, err := crypto.NormalizeAddress(original)
	if err != nil {
		return Entry{}, err
	}
	amount, err := ParseAmount(field(columnAmount), decimals)
	if err != nil {
		return Entry{}, err
	}
	state, err := ParseState(field(columnState))
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{CanonicalID: canonical, OriginalID: original, Amount: amount, State: state}
	if state == StateReserved {
		if raw := field(columnReservedAt); raw != "" {
			at, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return Entry{}, fmt.Errorf("invalid reserved_at %q: %w", raw, err)
			}
			entry.ReservedAt = at.UTC()
		}
		entry.ReservationID = field(columnReservationID)
	}
	return entry, nil
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// EncodeSnapshot renders every entry, ordered by canonical identity, so that encoding the
// same entry set twice yields identical bytes.
func EncodeSnapshot(entries []Entry, decimals uint8) ([]byte, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CanonicalID < sorted[j].CanonicalID })

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(snapshotHeader); err != nil {
		return nil, err
	}
	for _, entry := range sorted {
		reservedAt := ""
		if entry.State == StateReserved && !entry.ReservedAt.IsZero() {
			reservedAt = entry.ReservedAt.UTC().Format(time.RFC3339Nano)
		}
		reservationID := ""
		if entry.State == StateReserved {
			reservationID = entry.ReservationID
		}
		record := []string{
			entry.OriginalID,
			entry.Amount.Format(decimals),
			entry.State.String(),
			reservedAt,
			reservationID,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alanyoungcy/autobot/internal/domain"
)

const (
	tradeArchivePrefix = "archive/closed_trades/"
	backupPrefix       = "backups/"
	backupPartSize     = 8 * 1024 * 1024
)

// TradeSource reads closed trades by exit time.
type TradeSource interface {
	ClosedTradesBetween(ctx context.Context, from, to time.Time) ([]domain.ClosedTrade, error)
}

// Archiver copies closed trades into monthly JSONL objects and uploads
// database backups. Archiving never deletes anything from the ledger.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	trades TradeSource
	now    func() time.Time
	logger *slog.Logger
}

// NewArchiver creates an Archiver. reader may be nil, in which case each
// month's object is rewritten from the ledger alone.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, trades TradeSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		trades: trades,
		now:    time.Now,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// WithClock replaces the wall clock.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// TradeArchivePath is the object key for the month containing t (UTC),
// e.g. archive/closed_trades/2026-03.jsonl.
func TradeArchivePath(t time.Time) string {
	return tradeArchivePrefix + t.UTC().Format("2006-01") + ".jsonl"
}

// ArchiveMonth writes every trade that exited in month's calendar month to
// its archive object, merging with what is already stored. It returns the
// number of trades not previously archived.
func (a *Archiver) ArchiveMonth(ctx context.Context, month time.Time) (int, error) {
	from := time.Date(month.UTC().Year(), month.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	trades, err := a.trades.ClosedTradesBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: query: %w", from.Format("2006-01"), err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	path := TradeArchivePath(from)
	existing, err := a.load(ctx, path)
	if err != nil {
		return 0, err
	}

	merged := make(map[string]domain.ClosedTrade, len(existing)+len(trades))
	for _, t := range existing {
		merged[t.ID] = t
	}
	added := 0
	for _, t := range trades {
		if _, ok := merged[t.ID]; !ok {
			added++
		}
		merged[t.ID] = t
	}
	if added == 0 {
		return 0, nil
	}

	out := make([]domain.ClosedTrade, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExitTime.Equal(out[j].ExitTime) {
			return out[i].ExitTime.Before(out[j].ExitTime)
		}
		return out[i].ID < out[j].ID
	})

	buf, err := marshalJSONL(out)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", path, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, err
	}

	a.logger.Info("archiver: closed trades archived",
		slog.String("path", path),
		slog.Int("added", added),
		slog.Int("total", len(out)),
	)
	return added, nil
}

// ArchiveRecent archives the current month and the one before it, so trades
// closed just before a month boundary are not missed.
func (a *Archiver) ArchiveRecent(ctx context.Context) (int, error) {
	now := a.now().UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var total int
	var errs []error
	for _, m := range []time.Time{thisMonth.AddDate(0, -1, 0), thisMonth} {
		n, err := a.ArchiveMonth(ctx, m)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Run archives recent trades every interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := a.ArchiveRecent(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("archiver: archive failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// UploadBackup uploads the local database backup at localPath under
// backups/ and returns the object key.
func (a *Archiver) UploadBackup(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("s3blob: open backup: %w", err)
	}
	defer f.Close()

	key := backupPrefix + filepath.Base(localPath)
	if err := a.writer.PutMultipart(ctx, key, f, backupPartSize); err != nil {
		return "", err
	}
	a.logger.Info("archiver: backup uploaded", slog.String("key", key))
	return key, nil
}

func (a *Archiver) load(ctx context.Context, path string) ([]domain.ClosedTrade, error) {
	if a.reader == nil {
		return nil, nil
	}
	ok, err := a.reader.Exists(ctx, path)
	if err != nil || !ok {
		return nil, err
	}
	rc, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()

	trades, err := unmarshalJSONL(rc)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	return trades, nil
}

// marshalJSONL encodes one compact JSON record per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func unmarshalJSONL(r io.Reader) ([]domain.ClosedTrade, error) {
	var out []domain.ClosedTrade
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var t domain.ClosedTrade
		if err := json.Unmarshal(b, &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
	return out, sc.Err()
}

package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"github.com/alanyoungcy/amby/internal/domain"
)

// ContentTypeJSONL is the media type of snapshot objects.
const ContentTypeJSONL = "application/x-ndjson"

const (
	// Exports larger than this go through the multipart uploader.
	multipartThreshold = 8 << 20
	listPageSize       = 500
)

// LedgerSource is the read surface the archiver exports.
type LedgerSource interface {
	ListMarkets(ctx context.Context, offset, limit int) ([]domain.Market, error)
	ScanPositions(ctx context.Context, fn func(id uint64, account domain.Account, outcome domain.Outcome, points uint256.Int) error) error
}

// snapshotRecord is one JSONL line. Kind is "market" or "position".
type snapshotRecord struct {
	Kind           string `json:"kind"`
	MarketID       uint64 `json:"market_id"`
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	Creator        string `json:"creator,omitempty"`
	StartTime      int64  `json:"start_time,omitempty"`
	EndTime        int64  `json:"end_time,omitempty"`
	Status         string `json:"status,omitempty"`
	PoolYes        string `json:"pool_yes,omitempty"`
	PoolNo         string `json:"pool_no,omitempty"`
	TotalYesPoints string `json:"total_yes_points,omitempty"`
	TotalNoPoints  string `json:"total_no_points,omitempty"`
	Account        string `json:"account,omitempty"`
	Outcome        string `json:"outcome,omitempty"`
	Points         string `json:"points,omitempty"`
}

// Archiver implements domain.Archiver by writing every market and position
// to one JSONL object. Markets are read under their locks but the export as
// a whole is not a point-in-time snapshot.
type Archiver struct {
	source LedgerSource
	writer domain.BlobWriter
	audit  domain.AuditStore
	prefix string
	logger *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(source LedgerSource, writer domain.BlobWriter, audit domain.AuditStore, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{
		source: source,
		writer: writer,
		audit:  audit,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Prefix returns the key prefix snapshots are written under.
func (a *Archiver) Prefix() string { return a.prefix }

// ArchiveLedger exports the ledger and returns the object path and the
// number of records written.
func (a *Archiver) ArchiveLedger(ctx context.Context, at time.Time) (string, int64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	var records int64

	for offset := 0; ; offset += listPageSize {
		page, err := a.source.ListMarkets(ctx, offset, listPageSize)
		if err != nil {
			return "", 0, fmt.Errorf("s3blob: archive markets: %w", err)
		}
		for _, m := range page {
			if err := enc.Encode(marketRecord(m)); err != nil {
				return "", 0, fmt.Errorf("s3blob: encode market %d: %w", m.ID, err)
			}
			records++
		}
		if len(page) < listPageSize {
			break
		}
	}

	err := a.source.ScanPositions(ctx, func(id uint64, account domain.Account, outcome domain.Outcome, points uint256.Int) error {
		records++
		return enc.Encode(snapshotRecord{
			Kind:     "position",
			MarketID: id,
			Account:  account.Hex(),
			Outcome:  outcome.String(),
			Points:   points.Dec(),
		})
	})
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive positions: %w", err)
	}

	path := SnapshotPath(a.prefix, at)
	if buf.Len() > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, &buf, minPartSize)
	} else {
		err = a.writer.Put(ctx, path, &buf, ContentTypeJSONL)
	}
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.InfoContext(ctx, "ledger archived", slog.String("path", path), slog.Int64("records", records))
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.ledger", map[string]any{"path": path, "records": records}); err != nil {
			a.logger.WarnContext(ctx, "archive audit failed", slog.String("error", err.Error()))
		}
	}
	return path, records, nil
}

func marketRecord(m domain.Market) snapshotRecord {
	return snapshotRecord{
		Kind:           "market",
		MarketID:       m.ID,
		Title:          m.Title,
		Description:    m.Description,
		Creator:        m.Creator.Hex(),
		StartTime:      m.StartTime,
		EndTime:        m.EndTime,
		Status:         m.Status.String(),
		PoolYes:        m.PoolYes.Dec(),
		PoolNo:         m.PoolNo.Dec(),
		TotalYesPoints: m.TotalYesPoints.Dec(),
		TotalNoPoints:  m.TotalNoPoints.Dec(),
	}
}

// SnapshotPath builds the object key for a snapshot taken at t:
//
//	<prefix>/2025/01/31/ledger-1738281600.jsonl
func SnapshotPath(prefix string, t time.Time) string {
	t = t.UTC()
	key := fmt.Sprintf("%s/ledger-%d.jsonl", t.Format("2006/01/02"), t.Unix())
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		return prefix + "/" + key
	}
	return key
}

var _ domain.Archiver = (*Archiver)(nil)

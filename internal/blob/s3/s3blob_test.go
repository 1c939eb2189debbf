package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/domain"
	"github.com/alanyoungcy/amby/internal/ledger"
	"github.com/alanyoungcy/amby/internal/store/leveldb"
)

type memWriter struct {
	objects   map[string][]byte
	multipart int
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.objects[path] = b
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	w.multipart++
	return w.Put(ctx, path, data, ContentTypeJSONL)
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestSnapshotPath(t *testing.T) {
	at := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "snapshots/2025/01/31/ledger-1738281600.jsonl", SnapshotPath("/snapshots/", at))
	assert.Equal(t, "2025/01/31/ledger-1738281600.jsonl", SnapshotPath("", at))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("http://minio:9000", true))
}

func TestArchiveLedger(t *testing.T) {
	ctx := context.Background()
	kv, err := leveldb.OpenMemory()
	require.NoError(t, err)
	defer kv.Close()

	start := time.UnixMilli(1_700_000_000_000)
	engine := ledger.NewEngine(kv, ledger.WithClock(func() time.Time { return start }))
	creator := common.HexToAddress("0x00000000000000000000000000000000000c0ffe")
	payer := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	id, err := engine.CreateMarket(ctx, creator, "Rain?", "", start.UnixMilli()+1000)
	require.NoError(t, err)
	_, err = engine.RecordStake(ctx, domain.StakeRequest{MarketID: id, Payer: payer, Outcome: domain.OutcomeNo, Amount: *uint256.NewInt(10)})
	require.NoError(t, err)

	w := &memWriter{objects: map[string][]byte{}}
	audit := &memAudit{}
	a := NewArchiver(engine, w, audit, "snapshots", slog.New(slog.NewTextHandler(io.Discard, nil)))

	path, n, err := a.ArchiveLedger(ctx, start)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, SnapshotPath("snapshots", start), path)
	assert.Zero(t, w.multipart)
	assert.Equal(t, []string{"archive.ledger"}, audit.events)

	var lines []snapshotRecord
	sc := bufio.NewScanner(bytes.NewReader(w.objects[path]))
	for sc.Scan() {
		var rec snapshotRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "market", lines[0].Kind)
	assert.Equal(t, "10", lines[0].PoolNo)
	assert.Equal(t, "position", lines[1].Kind)
	assert.Equal(t, payer.Hex(), lines[1].Account)
	assert.Equal(t, "no", lines[1].Outcome)
	assert.Equal(t, "360", lines[1].Points)
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/amby/internal/domain"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersByEvent(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"market_created", " "}, quietLogger())

	require.NoError(t, n.NotifyEvent(context.Background(), domain.Event{Type: domain.EventStakePlaced, MarketID: 1}))
	require.NoError(t, n.NotifyEvent(context.Background(), domain.Event{Type: domain.EventMarketCreated, MarketID: 1, Title: "Q"}))
	assert.Equal(t, []string{"Market #1 opened"}, s.titles)
}

func TestNotifierContinuesPastFailure(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("down")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), "x", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Len(t, good.titles, 1)
}

func TestFormatStake(t *testing.T) {
	payer := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	title, msg := Format(domain.Event{
		Type:     domain.EventStakePlaced,
		MarketID: 3,
		Payer:    &payer,
		Outcome:  domain.OutcomeNo,
		Amount:   uint256.NewInt(250),
	})
	assert.Equal(t, "Stake on market #3", title)
	assert.Contains(t, msg, "staked 250 on NO")
	assert.Contains(t, msg, payer.Hex())
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Hi", "there"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Hi*\nthere", got["text"])
}

func TestDiscordSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdash/internal/model"
)

type recorder struct {
	got []model.Alert
	err error
}

func (r *recorder) Send(_ context.Context, a model.Alert) error {
	r.got = append(r.got, a)
	return r.err
}

func crossAlert() model.Alert {
	return model.Alert{
		ID:        "id-1",
		Type:      model.AlertCross,
		Severity:  model.SeverityHigh,
		Symbol:    "BTCUSDT",
		Timeframe: model.TF4H,
		Message:   "Golden Cross 3 days ago (4H)",
		CrossType: model.CrossGolden,
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "[HIGH] BTCUSDT 4H MA cross", Title(crossAlert()))

	fg := model.Alert{Type: model.AlertFearGreed, Severity: model.SeverityHigh, Symbol: "ETHUSDT"}
	assert.Equal(t, "[HIGH] ETHUSDT Fear & Greed", Title(fg))
}

func TestSeverityFilter(t *testing.T) {
	rec := &recorder{}
	n := WithMinSeverity(rec, model.SeverityMedium)
	ctx := context.Background()

	low := crossAlert()
	low.Severity = model.SeverityLow
	require.NoError(t, n.Send(ctx, low))
	require.NoError(t, n.Send(ctx, crossAlert()))

	require.Len(t, rec.got, 1)
	assert.Equal(t, model.SeverityHigh, rec.got[0].Severity)
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{}, &recorder{err: boom}
	err := Multi{a, b}.Send(context.Background(), crossAlert())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
}

func TestSendAll_CountsSuccesses(t *testing.T) {
	n := Multi{&recorder{}}
	assert.Equal(t, 2, SendAll(context.Background(), n, []model.Alert{crossAlert(), crossAlert()}))
	assert.Equal(t, 0, SendAll(context.Background(), &recorder{err: errors.New("x")}, []model.Alert{crossAlert()}))
}

func TestWebhookNotifier(t *testing.T) {
	var payload webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(srv.URL)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, w.Send(context.Background(), crossAlert()))

	assert.Equal(t, "[HIGH] BTCUSDT 4H MA cross", payload.Title)
	assert.Equal(t, "id-1", payload.Alert.ID)
	assert.Equal(t, model.CrossGolden, payload.Alert.CrossType)
	assert.Equal(t, "2024-01-02T03:04:05Z", payload.TS)
}

func TestWebhookNotifier_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), crossAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type fakeSender struct {
	params *bot.SendMessageParams
	err    error
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.params = p
	return &models.Message{}, f.err
}

func TestTelegramNotifier(t *testing.T) {
	fs := &fakeSender{}
	n := &TelegramNotifier{sender: fs, chatID: 42}
	require.NoError(t, n.Send(context.Background(), crossAlert()))

	require.NotNil(t, fs.params)
	assert.Equal(t, int64(42), fs.params.ChatID)
	assert.Equal(t, models.ParseModeMarkdown, fs.params.ParseMode)
	text := fs.params.Text
	assert.True(t, strings.HasPrefix(text, "🚨 *"))
	assert.Contains(t, text, `Golden Cross 3 days ago \(4H\)`)
}

func TestTelegramNotifier_Error(t *testing.T) {
	n := &TelegramNotifier{sender: &fakeSender{err: errors.New("forbidden")}, chatID: 1}
	assert.ErrorContains(t, n.Send(context.Background(), crossAlert()), "forbidden")
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `StochRSI Overbought \(85\.3\) \- 1H`, escapeMarkdown("StochRSI Overbought (85.3) - 1H"))
}

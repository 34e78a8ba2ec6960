package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/imbot-relay/internal/bitrix"
	"github.com/capitalize-ai/imbot-relay/internal/inbound"
	"github.com/capitalize-ai/imbot-relay/internal/model"
	"github.com/capitalize-ai/imbot-relay/internal/service"
	"github.com/capitalize-ai/imbot-relay/pkg/logger"
)

type stubResponder struct{ calls atomic.Int32 }

func (s *stubResponder) RunJob(ctx context.Context, content string) string {
	s.calls.Add(1)
	return "reply to " + content
}

type stubAnalyzer struct{ calls atomic.Int32 }

func (s *stubAnalyzer) AnalyzeFile(ctx context.Context, url, name string) string {
	s.calls.Add(1)
	return "analysis"
}

// countingPlatform is a fake REST endpoint that counts requests.
type countingPlatform struct {
	status int
	calls  atomic.Int32
	bodies chan map[string]any
}

func (p *countingPlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	select {
	case p.bodies <- body:
	default:
	}
	w.WriteHeader(p.status)
	_, _ = w.Write([]byte(`{"result":true}`))
}

type relayFixture struct {
	platform  *countingPlatform
	responder *stubResponder
	analyzer  *stubAnalyzer
	handler   http.Handler
}

func newRelayFixture(t *testing.T, platformStatus int) *relayFixture {
	t.Helper()
	f := &relayFixture{
		platform:  &countingPlatform{status: platformStatus, bodies: make(chan map[string]any, 4)},
		responder: &stubResponder{},
		analyzer:  &stubAnalyzer{},
	}
	srv := httptest.NewServer(f.platform)
	t.Cleanup(srv.Close)

	deliverer := bitrix.NewClient(bitrix.Options{SendWebhook: srv.URL + "/rest/1/tok", BotID: "7"}, nil)
	svc := service.NewRelayService(f.responder, f.analyzer, deliverer, nil, service.Options{WelcomeMessage: "hi"}, nil)
	wh := NewWebhookHandler(inbound.NewClassifier(inbound.DefaultAliases), svc, 5*time.Second, logger.NewNop())
	f.handler = http.HandlerFunc(wh.Handle)
	return f
}

func postForm(h http.Handler, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/handler", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWebhook_UnknownEventMakesNoCalls(t *testing.T) {
	f := newRelayFixture(t, http.StatusOK)

	for _, event := range []string{"ONAPPINSTALL", "", "onimbotmessageupdate"} {
		rec := postForm(f.handler, url.Values{
			"event":                   {event},
			"data[PARAMS][DIALOG_ID]": {"chat1"},
			"data[PARAMS][MESSAGE]":   {"hello"},
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeStatus(t, rec)
		assert.Equal(t, "ignored", body["status"])
		assert.Equal(t, strings.ToUpper(event), body["event"])
	}

	assert.Zero(t, f.platform.calls.Load())
	assert.Zero(t, f.responder.calls.Load())
	assert.Zero(t, f.analyzer.calls.Load())
}

func TestWebhook_MalformedBodyIgnored(t *testing.T) {
	f := newRelayFixture(t, http.StatusOK)

	req := httptest.NewRequest(http.MethodPost, "/handler", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeStatus(t, rec)["status"])
	assert.Zero(t, f.platform.calls.Load())
}

func TestWebhook_TextMessageDelivered(t *testing.T) {
	f := newRelayFixture(t, http.StatusOK)

	rec := postForm(f.handler, url.Values{
		"event":                   {"ONIMBOTMESSAGEADD"},
		"data[PARAMS][DIALOG_ID]": {"chat15"},
		"data[PARAMS][MESSAGE]":   {"hello"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeStatus(t, rec)["status"])
	assert.EqualValues(t, 1, f.responder.calls.Load())
	assert.EqualValues(t, 1, f.platform.calls.Load())

	body := <-f.platform.bodies
	assert.Equal(t, "chat15", body["DIALOG_ID"])
	assert.Equal(t, "reply to hello", body["MESSAGE"])
	assert.Equal(t, "7", body["BOT_ID"])
}

func TestWebhook_JSONPayload(t *testing.T) {
	f := newRelayFixture(t, http.StatusOK)

	req := httptest.NewRequest(http.MethodPost, "/handler", strings.NewReader(
		`{"event":"onimbotmessageadd","data":{"PARAMS":{"DIALOG_ID":"chat2","MESSAGE":"hey"}}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "ok", decodeStatus(t, rec)["status"])
	body := <-f.platform.bodies
	assert.Equal(t, "chat2", body["DIALOG_ID"])
}

func TestWebhook_DeliveryFailureStillOK(t *testing.T) {
	f := newRelayFixture(t, http.StatusInternalServerError)

	rec := postForm(f.handler, url.Values{
		"event":                   {"ONIMBOTMESSAGEADD"},
		"data[PARAMS][DIALOG_ID]": {"chat15"},
		"data[PARAMS][MESSAGE]":   {"hello"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "ok"}, decodeStatus(t, rec))
	assert.EqualValues(t, 1, f.platform.calls.Load())
}

func TestWebhook_NoDialog(t *testing.T) {
	f := newRelayFixture(t, http.StatusOK)

	rec := postForm(f.handler, url.Values{
		"event":                 {"ONIMBOTMESSAGEADD"},
		"data[PARAMS][MESSAGE]": {"hello"},
	})

	assert.Equal(t, "no_dialog", decodeStatus(t, rec)["status"])
	assert.Zero(t, f.platform.calls.Load())
	assert.Zero(t, f.responder.calls.Load())
}

func TestWebhook_AttachmentRoutedToAnalyzer(t *testing.T) {
	f := newRelayFixture(t, http.StatusOK)

	rec := postForm(f.handler, url.Values{
		"event":                                {"ONIMBOTMESSAGEADD"},
		"data[PARAMS][DIALOG_ID]":              {"chat3"},
		"data[PARAMS][MESSAGE]":                {"see attached"},
		"data[PARAMS][FILES][12][urlDownload]": {"https://portal/file/12"},
		"data[PARAMS][FILES][12][name]":        {"scan.png"},
	})

	assert.Equal(t, "ok", decodeStatus(t, rec)["status"])
	assert.EqualValues(t, 1, f.analyzer.calls.Load())
	assert.Zero(t, f.responder.calls.Load())
}

type panickingEvents struct{}

func (panickingEvents) Handle(ctx context.Context, event model.InboundEvent) service.Outcome {
	panic("kaboom")
}

func TestWebhook_PanicBecomes500(t *testing.T) {
	wh := NewWebhookHandler(inbound.NewClassifier(inbound.DefaultAliases), panickingEvents{}, time.Second, logger.NewNop())

	rec := postForm(http.HandlerFunc(wh.Handle), url.Values{
		"event":     {"ONIMBOTJOINCHAT"},
		"DIALOG_ID": {"chat1"},
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, map[string]string{"status": "error", "message": "kaboom"}, decodeStatus(t, rec))
}

type ctxCapture struct {
	called      bool
	err         error
	hasDeadline bool
}

func (c *ctxCapture) Handle(ctx context.Context, event model.InboundEvent) service.Outcome {
	c.called = true
	c.err = ctx.Err()
	_, c.hasDeadline = ctx.Deadline()
	return service.Outcome{Status: service.StatusOK}
}

func TestWebhook_ProcessingSurvivesClientCancel(t *testing.T) {
	capture := &ctxCapture{}
	wh := NewWebhookHandler(inbound.NewClassifier(inbound.DefaultAliases), capture, time.Minute, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/handler",
		strings.NewReader(url.Values{"event": {"ONIMBOTJOINCHAT"}, "DIALOG_ID": {"c"}}.Encode())).WithContext(ctx)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	wh.Handle(httptest.NewRecorder(), req)

	require.True(t, capture.called)
	assert.NoError(t, capture.err)
	assert.True(t, capture.hasDeadline)
}

type fakeRegistrar struct {
	endpoint string
	reg      bitrix.Registration
	err      error
}

func (f *fakeRegistrar) Register(ctx context.Context, endpoint string, reg bitrix.Registration) (map[string]any, error) {
	f.endpoint = endpoint
	f.reg = reg
	if f.err != nil {
		return nil, f.err
	}
	return map[string]any{"result": 136}, nil
}

func TestRegistrationURL(t *testing.T) {
	assert.Equal(t,
		"https://lab.bitrix24.com.br/rest/1/tok/imbot.register.json",
		RegistrationURL("lab.bitrix24.com.br", true, "/rest/1/tok"))
	assert.Equal(t,
		"http://portal.local/rest/1/tok/imbot.register.json",
		RegistrationURL("portal.local", false, "/rest/1/tok/"))
}

func TestInstall(t *testing.T) {
	reg := bitrix.NewRegistration("code", "https://relay/handler", bitrix.Properties{Name: "Bot"})

	t.Run("registers", func(t *testing.T) {
		r := &fakeRegistrar{}
		h := NewInstallHandler(r, "/rest/1/tok", reg, logger.NewNop())

		rec := httptest.NewRecorder()
		h.Install(rec, httptest.NewRequest(http.MethodPost, "/install?DOMAIN=lab.example.com&PROTOCOL=1", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://lab.example.com/rest/1/tok/imbot.register.json", r.endpoint)
		assert.Equal(t, reg, r.reg)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "installed", body["status"])
		assert.Equal(t, float64(136), body["bitrix_response"].(map[string]any)["result"])
	})

	t.Run("plain http", func(t *testing.T) {
		r := &fakeRegistrar{}
		h := NewInstallHandler(r, "/rest/1/tok", reg, logger.NewNop())

		h.Install(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/install?DOMAIN=lab.example.com", nil))
		assert.Equal(t, "http://lab.example.com/rest/1/tok/imbot.register.json", r.endpoint)
	})

	t.Run("missing domain", func(t *testing.T) {
		r := &fakeRegistrar{}
		h := NewInstallHandler(r, "/rest/1/tok", reg, logger.NewNop())

		rec := httptest.NewRecorder()
		h.Install(rec, httptest.NewRequest(http.MethodPost, "/install", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, r.endpoint)
	})

	t.Run("transport failure", func(t *testing.T) {
		r := &fakeRegistrar{err: errors.New("connection refused")}
		h := NewInstallHandler(r, "/rest/1/tok", reg, logger.NewNop())

		rec := httptest.NewRecorder()
		h.Install(rec, httptest.NewRequest(http.MethodPost, "/install?DOMAIN=lab.example.com", nil))

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "error", decodeStatus(t, rec)["status"])
	})
}

type connState bool

func (c connState) IsConnected() bool { return bool(c) }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler("online", nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler("online", connState(false)).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler("online", connState(true)).Home(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "online", rec.Body.String())
}

package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"keepernest/internal/blob"
	"keepernest/internal/core"
)

var testWelcome = core.WelcomeMail{
	To:              "ada@example.com",
	Name:            "Ada <Lovelace>",
	EmployeeID:      "E100",
	InitialPassword: "EMPLOYEE_E100",
	CreatedBy:       "admin@example.com",
}

var testFrom = Address{Email: "it@example.com", Name: "IT"}

func TestRenderWelcome(t *testing.T) {
	msg, err := RenderWelcome(testFrom, testWelcome)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("rendered message invalid: %v", err)
	}
	if !strings.Contains(msg.Text, "EMPLOYEE_E100") || !strings.Contains(msg.Text, "admin@example.com") {
		t.Fatalf("text missing credentials: %s", msg.Text)
	}
	if !strings.Contains(msg.HTML, "Ada &lt;Lovelace&gt;") {
		t.Fatalf("html not escaped: %s", msg.HTML)
	}
	if msg.To[0].Email != "ada@example.com" || msg.Category != "welcome" {
		t.Fatalf("unexpected envelope %+v", msg)
	}
}

func TestValidate(t *testing.T) {
	err := Message{}.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"from", "recipient", "subject", "body"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestOutboxSender(t *testing.T) {
	store := blob.NewMemory()
	sender := NewOutboxSender(store)
	sender.now = func() time.Time { return time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC) }
	sender.newID = func() string { return "m1" }

	n := NewNotifier(sender, testFrom)
	if err := n.SendWelcome(context.Background(), testWelcome); err != nil {
		t.Fatalf("send: %v", err)
	}
	infos, err := store.List(context.Background(), OutboxPrefix)
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %v %+v", err, infos)
	}
	if infos[0].Key != "outbox/20240601T093000Z-m1.json" {
		t.Fatalf("unexpected key %s", infos[0].Key)
	}
	_, rc, err := store.Get(context.Background(), infos[0].Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	var rec outboxRecord
	if err := json.NewDecoder(rc).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Subject != welcomeSubject || rec.To[0].Email != "ada@example.com" || rec.QueuedAt.IsZero() {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestSendGridSender(t *testing.T) {
	var calls int32
	bodies := make(chan mailSendRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v3/mail/send" || r.Header.Get("Authorization") != "Bearer sg-key" {
			t.Errorf("unexpected request %s %s", r.URL.Path, r.Header.Get("Authorization"))
		}
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body mailSendRequest
		_ = json.Unmarshal(raw, &body)
		bodies <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewSendGridSender(SendGridConfig{APIKey: "sg-key", BaseURL: srv.URL + "/", MaxRetries: 2}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s.backoff = time.Millisecond
	if err := NewNotifier(s, testFrom).SendWelcome(context.Background(), testWelcome); err != nil {
		t.Fatalf("send: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one retry, got %d calls", atomic.LoadInt32(&calls))
	}
	body := <-bodies
	if len(body.Content) != 2 || body.Content[0].Type != "text/plain" || body.Categories[0] != "welcome" {
		t.Fatalf("unexpected payload %+v", body)
	}
}

func TestSendGridClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from","field":"from"}]}`))
	}))
	defer srv.Close()

	s, err := NewSendGridSender(SendGridConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 3}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	msg, _ := RenderWelcome(testFrom, testWelcome)
	err = s.Send(context.Background(), msg)
	var he *HTTPError
	if !errors.As(err, &he) || he.HTTPStatusCode() != http.StatusBadRequest || !strings.Contains(err.Error(), "invalid from") {
		t.Fatalf("unexpected error %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("client error retried %d times", n)
	}
}

func TestOpen(t *testing.T) {
	if s, err := Open(Config{}, nil, nil); err != nil {
		t.Fatalf("log driver: %v", err)
	} else if err := s.Send(context.Background(), Message{From: testFrom, To: []Address{{Email: "a@b.c"}}, Subject: "s", Text: "t"}); err != nil {
		t.Fatalf("log send: %v", err)
	}
	if _, err := Open(Config{Driver: DriverOutbox}, nil, nil); err == nil {
		t.Fatalf("outbox without store should fail")
	}
	if _, err := Open(Config{Driver: DriverSendGrid}, nil, nil); err == nil {
		t.Fatalf("sendgrid without key should fail")
	}
	if _, err := Open(Config{Driver: "smtp"}, nil, nil); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

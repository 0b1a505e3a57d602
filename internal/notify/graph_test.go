package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
)

const testGUID = "12345678-1234-1234-1234-123456789abc"

func testGraphConfig() *types.GraphConfig {
	return &types.GraphConfig{
		TenantID:     testGUID,
		ClientID:     testGUID,
		ClientSecret: "secret",
		FromAddress:  "meter@example.com",
		Recipients:   "a@example.com, b@example.com",
	}
}

// fakeGraph serves a client-credentials token endpoint and the mail API.
func fakeGraph(t *testing.T, mailbox int) (*httptest.Server, *[]graphMailRequest) {
	t.Helper()
	var sent []graphMailRequest

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("POST /users/{mailbox}/sendMail", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req graphMailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		sent = append(sent, req)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /users/{mailbox}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(mailbox)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &sent
}

func testClient(t *testing.T, srv *httptest.Server) *GraphClient {
	t.Helper()
	client, err := newGraphClient(testGraphConfig(), graphEndpoints{apiURL: srv.URL, tokenURL: srv.URL + "/token"})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestGraphSendMail(t *testing.T) {
	srv, sent := fakeGraph(t, http.StatusOK)
	client := testClient(t, srv)

	subject, body := loudEmail("Studio 1", 56, 50)
	if err := client.SendMail(ParseRecipients(testGraphConfig().Recipients), subject, body); err != nil {
		t.Fatalf("SendMail: %v", err)
	}

	if len(*sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(*sent))
	}
	msg := (*sent)[0].Message
	if msg.Subject != "[ALERT] Loud Environment - Studio 1" {
		t.Errorf("subject = %q", msg.Subject)
	}
	var to []string
	for _, r := range msg.ToRecipients {
		to = append(to, r.EmailAddress.Address)
	}
	if !slices.Equal(to, []string{"a@example.com", "b@example.com"}) {
		t.Errorf("recipients = %v", to)
	}
	if !strings.Contains(msg.Body.Content, "56.0 dB") {
		t.Errorf("body missing score: %q", msg.Body.Content)
	}
}

func TestGraphSendMailRejectsEmptyRecipients(t *testing.T) {
	srv, _ := fakeGraph(t, http.StatusOK)
	if err := testClient(t, srv).SendMail([]string{" ", ""}, "s", "b"); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("err = %v, want ErrNoRecipients", err)
	}
}

// flakyGraph answers sendMail with the given statuses in order, then 202.
func flakyGraph(t *testing.T, statuses ...int) (*GraphClient, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("POST /users/{mailbox}/sendMail", func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1)) - 1
		if n < len(statuses) {
			w.WriteHeader(statuses[n])
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := testClient(t, srv)
	client.retryFirst = time.Millisecond
	client.retryMax = 5 * time.Millisecond
	return client, &calls
}

func TestGraphSendMailRetries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   bool
	}{
		{"transient then ok", []int{http.StatusServiceUnavailable, http.StatusBadGateway}, 3, false},
		{"client error is final", []int{http.StatusBadRequest}, 1, true},
		{"always throttled", []int{429, 429, 429, 429}, graphAttempts, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, calls := flakyGraph(t, tt.statuses...)
			err := client.SendMail([]string{"a@example.com"}, "s", "b")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			var statusErr *graphStatusError
			if tt.wantErr && !errors.As(err, &statusErr) {
				t.Errorf("error %v does not carry the status", err)
			}
		})
	}
}

func TestGraphValidateAuth(t *testing.T) {
	tests := []struct {
		status  int
		wantErr bool
	}{
		{http.StatusOK, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, true},
		{http.StatusUnauthorized, true},
	}
	for _, tt := range tests {
		srv, _ := fakeGraph(t, tt.status)
		err := testClient(t, srv).ValidateAuth()
		if (err != nil) != tt.wantErr {
			t.Errorf("status %d: err = %v, wantErr %v", tt.status, err, tt.wantErr)
		}
	}
}

func TestSendTestEmailWithClient(t *testing.T) {
	srv, sent := fakeGraph(t, http.StatusForbidden)
	if err := sendTestEmailWithClient(testClient(t, srv), testGraphConfig(), "Studio 1"); err != nil {
		t.Fatal(err)
	}
	if len(*sent) != 1 || (*sent)[0].Message.Subject != "[TEST] Studio 1" {
		t.Errorf("sent = %+v", *sent)
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(testGraphConfig()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	bad := testGraphConfig()
	bad.TenantID = "not-a-guid"
	if err := ValidateConfig(bad); err == nil {
		t.Error("non-GUID tenant accepted")
	}

	noRecipients := testGraphConfig()
	noRecipients.Recipients = ""
	if err := ValidateConfig(noRecipients); err == nil {
		t.Error("missing recipients accepted")
	}
	if IsConfigured(noRecipients) {
		t.Error("IsConfigured true without recipients")
	}
}

func TestNewGraphClientRequiresSender(t *testing.T) {
	cfg := testGraphConfig()
	cfg.FromAddress = ""
	if _, err := NewGraphClient(cfg); err == nil {
		t.Error("expected error without from address")
	}
}

func TestParseRecipients(t *testing.T) {
	got := ParseRecipients(" a@x.nl ,, b@x.nl,")
	if !slices.Equal(got, []string{"a@x.nl", "b@x.nl"}) {
		t.Errorf("ParseRecipients = %v", got)
	}
	if got := ParseRecipients(""); got != nil {
		t.Errorf("ParseRecipients(\"\") = %v, want nil", got)
	}
}

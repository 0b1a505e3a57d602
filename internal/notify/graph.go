package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-soundmeter/internal/types"
	"github.com/oszuidwest/zwfm-soundmeter/internal/util"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	graphBaseURL     = "https://graph.microsoft.com/v1.0"
	graphScope       = "https://graph.microsoft.com/.default"
	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token" //nolint:gosec // URL template, not a credential

	graphAttempts    = 4
	graphRetryFirst  = time.Second
	graphRetryMax    = 30 * time.Second
	graphHTTPTimeout = 30 * time.Second
	graphBodyLimit   = 4 << 10
)

var (
	// ErrNoRecipients is returned when a mail has nobody to go to.
	ErrNoRecipients = errors.New("no recipients specified")
	// ErrNoSender is returned when the shared mailbox address is missing.
	ErrNoSender = errors.New("from address (shared mailbox) is required")
)

var guidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// graphEndpoints locates the Graph API and the token service.
type graphEndpoints struct {
	apiURL   string
	tokenURL string
}

func defaultEndpoints(tenantID string) graphEndpoints {
	return graphEndpoints{
		apiURL:   graphBaseURL,
		tokenURL: fmt.Sprintf(tokenURLTemplate, tenantID),
	}
}

// graphStatusError is a non-success answer from the Graph API.
type graphStatusError struct {
	Status int
	Body   string
}

func (e *graphStatusError) Error() string {
	return fmt.Sprintf("graph API returned %d: %s", e.Status, e.Body)
}

// temporary reports whether the same request may succeed later.
func (e *graphStatusError) temporary() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// checkCredentials requires the app registration fields. With strict set the
// tenant and client IDs must also look like GUIDs.
func checkCredentials(cfg *types.GraphConfig, strict bool) error {
	ids := []struct{ name, value string }{
		{"tenant ID", cfg.TenantID},
		{"client ID", cfg.ClientID},
	}
	for _, id := range ids {
		if id.value == "" {
			return fmt.Errorf("%s is required", id.name)
		}
		if strict && !guidPattern.MatchString(id.value) {
			return fmt.Errorf("%s must be a GUID such as 12345678-1234-1234-1234-123456789abc", id.name)
		}
	}
	if cfg.ClientSecret == "" {
		return errors.New("client secret is required")
	}
	return nil
}

// GraphClient sends mail from a shared mailbox through Microsoft Graph
// using the client-credentials flow.
type GraphClient struct {
	mailbox    string
	apiURL     string
	httpClient *http.Client

	retryFirst time.Duration
	retryMax   time.Duration
}

// NewGraphClient returns a client for the public Microsoft cloud.
func NewGraphClient(cfg *types.GraphConfig) (*GraphClient, error) {
	return newGraphClient(cfg, defaultEndpoints(cfg.TenantID))
}

func newGraphClient(cfg *types.GraphConfig, ep graphEndpoints) (*GraphClient, error) {
	if err := checkCredentials(cfg, false); err != nil {
		return nil, err
	}
	if cfg.FromAddress == "" {
		return nil, ErrNoSender
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     ep.tokenURL,
		Scopes:       []string{graphScope},
	}
	// The token fetch goes through base, so its timeout applies there too.
	base := &http.Client{Timeout: graphHTTPTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &GraphClient{
		mailbox:    cfg.FromAddress,
		apiURL:     ep.apiURL,
		httpClient: creds.Client(ctx),
		retryFirst: graphRetryFirst,
		retryMax:   graphRetryMax,
	}, nil
}

func (c *GraphClient) userURL(suffix string) string {
	return c.apiURL + "/users/" + url.PathEscape(c.mailbox) + suffix
}

type graphMailRequest struct {
	Message graphMessage `json:"message"`
}

type graphMessage struct {
	Subject      string           `json:"subject"`
	Body         graphBody        `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Address string `json:"address"`
}

// SendMail delivers a plain-text message. Throttling and gateway errors are
// retried with backoff; other failures return at once.
func (c *GraphClient) SendMail(recipients []string, subject, body string) error {
	msg := graphMessage{
		Subject: subject,
		Body:    graphBody{ContentType: "Text", Content: body},
	}
	for _, addr := range recipients {
		if addr = strings.TrimSpace(addr); addr != "" {
			msg.ToRecipients = append(msg.ToRecipients, graphRecipient{EmailAddress: graphEmailAddress{Address: addr}})
		}
	}
	if len(msg.ToRecipients) == 0 {
		return ErrNoRecipients
	}

	payload, err := json.Marshal(graphMailRequest{Message: msg})
	if err != nil {
		return util.WrapError("marshal mail", err)
	}

	backoff := util.NewBackoff(c.retryFirst, c.retryMax)
	var lastErr error
	for attempt := range graphAttempts {
		retryAfter, err := c.postMail(payload)
		if err == nil {
			return nil
		}
		lastErr = err

		var statusErr *graphStatusError
		if errors.As(err, &statusErr) && !statusErr.temporary() {
			return err
		}
		if attempt < graphAttempts-1 {
			time.Sleep(backoff.NextAtLeast(retryAfter))
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", graphAttempts, lastErr)
}

// postMail makes one sendMail call. On 429 it also returns the server's
// Retry-After in whole seconds.
func (c *GraphClient) postMail(payload []byte) (time.Duration, error) {
	req, err := http.NewRequest(http.MethodPost, c.userURL("/sendMail"), bytes.NewReader(payload))
	if err != nil {
		return 0, util.WrapError("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, util.WrapError("send request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "graph sendMail response")()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return 0, nil
	}

	var retryAfter time.Duration
	if resp.StatusCode == http.StatusTooManyRequests {
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			retryAfter = time.Duration(s) * time.Second
		}
	}
	return retryAfter, &graphStatusError{Status: resp.StatusCode, Body: readSnippet(resp.Body)}
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, graphBodyLimit))
	return strings.TrimSpace(string(b))
}

// ValidateAuth proves the credentials work by looking up the sender
// mailbox, which forces a token fetch. A 403 still means the token was
// issued, as registrations limited to Mail.Send cannot read users.
func (c *GraphClient) ValidateAuth() error {
	req, err := http.NewRequest(http.MethodGet, c.userURL(""), http.NoBody)
	if err != nil {
		return util.WrapError("create validation request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("authentication failed: %w", err)
		}
		return util.WrapError("validation request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "graph validation response")()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusForbidden:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("mailbox %s not found", c.mailbox)
	case http.StatusUnauthorized:
		return errors.New("authentication failed: invalid credentials")
	default:
		return &graphStatusError{Status: resp.StatusCode, Body: readSnippet(resp.Body)}
	}
}

// ValidateConfig checks a full email configuration, GUID formats included.
func ValidateConfig(cfg *types.GraphConfig) error {
	if err := checkCredentials(cfg, true); err != nil {
		return err
	}
	if cfg.FromAddress == "" {
		return ErrNoSender
	}
	if len(ParseRecipients(cfg.Recipients)) == 0 {
		return errors.New("recipients are required")
	}
	return nil
}

// IsConfigured reports whether every field needed to send is set.
func IsConfigured(cfg *types.GraphConfig) bool {
	return cfg.TenantID != "" && cfg.ClientID != "" && cfg.ClientSecret != "" &&
		cfg.FromAddress != "" && cfg.Recipients != ""
}

// ParseRecipients splits a comma-separated list, dropping blanks.
func ParseRecipients(recipients string) []string {
	var result []string
	for r := range strings.SplitSeq(recipients, ",") {
		if r = strings.TrimSpace(r); r != "" {
			result = append(result, r)
		}
	}
	return result
}

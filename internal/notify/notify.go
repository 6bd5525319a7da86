package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/devblac/bridge-relay/internal/config"
)

// Payload describes one relay outcome worth reporting.
type Payload struct {
	Direction string
	Chain     string
	Kind      string
	Height    uint64
	TxHash    string
	LogIndex  uint
	Action    string
	Outcome   string
	RelayTx   string
	Detail    string
	Args      map[string]any
}

type Sender interface {
	Send(ctx context.Context, payload Payload) error
}

const defaultTemplate = "RELAY {{.Outcome}} {{.Direction}} {{.Chain}} {{short_hash .TxHash}}#{{.LogIndex}} {{.Action}}{{if .Detail}}: {{.Detail}}{{end}}"

type httpSender struct {
	url     string
	method  string
	render  *template.Template
	client  *http.Client
	headers map[string]string
}

// NewWebhookSender builds a generic HTTP sender.
func NewWebhookSender(url, method, tmpl string, headers map[string]string) (Sender, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url required")
	}
	if method == "" {
		method = http.MethodPost
	}
	t, err := parseTemplate(tmpl)
	if err != nil {
		return nil, err
	}
	return &httpSender{
		url:     url,
		method:  strings.ToUpper(method),
		render:  t,
		client:  defaultClient(),
		headers: headers,
	}, nil
}

// NewSlackSender builds a Slack-compatible webhook sender.
func NewSlackSender(url, tmpl string) (Sender, error) {
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// NewTeamsSender builds a Teams-compatible webhook sender.
func NewTeamsSender(url, tmpl string) (Sender, error) {
	// Teams accepts simple {text: "..."} payloads.
	return NewWebhookSender(url, http.MethodPost, tmpl, map[string]string{
		"Content-Type": "application/json",
	})
}

// FromConfig builds one sender per notify entry.
func FromConfig(entries []config.Notify) (map[string]Sender, error) {
	out := make(map[string]Sender, len(entries))
	for _, n := range entries {
		var (
			s   Sender
			err error
		)
		switch strings.ToLower(n.Type) {
		case "slack":
			s, err = NewSlackSender(n.WebhookURL, n.Template)
		case "teams":
			s, err = NewTeamsSender(n.WebhookURL, n.Template)
		case "webhook":
			s, err = NewWebhookSender(n.URL, n.Method, n.Template, map[string]string{"Content-Type": "application/json"})
		default:
			err = fmt.Errorf("unsupported notify type %q", n.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("notify %s: %w", n.ID, err)
		}
		out[n.ID] = s
	}
	return out, nil
}

func (s *httpSender) Send(ctx context.Context, payload Payload) error {
	bodyStr, err := executeTemplate(s.render, payload)
	if err != nil {
		return err
	}
	reqBody, err := json.Marshal(map[string]string{
		"text": bodyStr,
	})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify http status %d", resp.StatusCode)
	}
	return nil
}

func parseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		tmpl = defaultTemplate
	}
	funcs := template.FuncMap{
		"pretty_json": func(v any) string {
			out, _ := json.MarshalIndent(v, "", "  ")
			return string(out)
		},
		"short_addr": shorten,
		"short_hash": shorten,
	}
	return template.New("msg").Funcs(funcs).Parse(tmpl)
}

func shorten(s string) string {
	if len(s) <= 10 {
		return s
	}
	return s[:6] + "..." + s[len(s)-4:]
}

func executeTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: 8 * time.Second,
	}
}

package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/tuc/internal/history"
)

// Sink indexes events into OpenSearch (or Elasticsearch) with one POST to
// {baseURL}/{index}/_doc per event. Credentials in the URL userinfo are
// sent as basic auth.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
	user    *url.Userinfo
	// Daily appends -YYYY.MM.DD (UTC, from the event time) to the index.
	Daily bool
}

type document struct {
	Timestamp time.Time `json:"@timestamp"`
	history.Event
}

func New(baseURL, index string) *Sink {
	s := &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
	if u, err := url.Parse(s.baseURL); err == nil && u.User != nil {
		s.user = u.User
		u.User = nil
		s.baseURL = u.String()
	}
	return s
}

func (s *Sink) indexFor(e history.Event) string {
	if !s.Daily {
		return s.index
	}
	at := e.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	return s.index + "-" + at.UTC().Format("2006.01.02")
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(document{Timestamp: e.OccurredAt.UTC(), Event: e})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/_doc", s.baseURL, url.PathEscape(s.indexFor(e)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != nil {
		pass, _ := s.user.Password()
		req.SetBasicAuth(s.user.Username(), pass)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

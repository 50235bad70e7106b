// Package hass connects the controller to a Home Assistant instance: Client reads and writes entity states over the
// REST API and Listener streams state changes over the websocket API.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/clambin/home-controller/internal/host"
	"github.com/prometheus/client_golang/prometheus"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// An Entity is the state of a Home Assistant entity, as returned by /api/states.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// Client implements host.Host against the Home Assistant REST API. Reads are served from a cache of all entities,
// loaded by Refresh and kept current by Update.
type Client struct {
	URL        string
	Token      string
	HTTPClient *http.Client
	logger     *slog.Logger
	entities   map[string]Entity
	lock       sync.RWMutex
}

var _ host.Host = &Client{}

// NewClient returns a Client for the Home Assistant instance at url. If requestMetrics is not nil, all API calls are
// recorded in it.
func NewClient(url, token string, requestMetrics metrics.RequestMetrics, logger *slog.Logger) *Client {
	rt := http.DefaultTransport
	if requestMetrics != nil {
		rt = roundtripper.New(
			roundtripper.WithRequestMetrics(requestMetrics),
			roundtripper.WithRoundTripper(rt),
		)
	}
	return &Client{
		URL:        strings.TrimSuffix(url, "/"),
		Token:      token,
		HTTPClient: &http.Client{Transport: rt, Timeout: 15 * time.Second},
		logger:     logger,
		entities:   make(map[string]Entity),
	}
}

// NewRequestMetrics returns the metrics recorded for each API call. Paths are reduced to their endpoint, so entity
// IDs and service names don't create new label values.
func NewRequestMetrics(namespace, subsystem string, labels prometheus.Labels) metrics.RequestMetrics {
	return metrics.NewRequestMetrics(metrics.Options{
		Namespace:   namespace,
		Subsystem:   subsystem,
		ConstLabels: labels,
		LabelValues: func(request *http.Request, code int) (string, string, string) {
			return request.Method, endpoint(request.URL.Path), strconv.Itoa(code)
		},
	})
}

func endpoint(path string) string {
	for _, prefix := range []string{"/api/states", "/api/services"} {
		if strings.HasPrefix(path, prefix) {
			return prefix
		}
	}
	if path == "" {
		return "/"
	}
	return path
}

// Refresh reloads all entities.
func (c *Client) Refresh(ctx context.Context) error {
	var entities []Entity
	if err := c.call(ctx, http.MethodGet, "/api/states", nil, &entities); err != nil {
		return fmt.Errorf("states: %w", err)
	}
	cache := make(map[string]Entity, len(entities))
	for _, e := range entities {
		cache[e.EntityID] = e
	}
	c.lock.Lock()
	c.entities = cache
	c.lock.Unlock()
	c.logger.Debug("entities loaded", "count", len(cache))
	return nil
}

// Update stores a changed entity in the cache. A nil-state entity (i.e. one that was removed) is deleted.
func (c *Client) Update(e Entity) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if e.State == "" && e.Attributes == nil {
		delete(c.entities, e.EntityID)
		return
	}
	c.entities[e.EntityID] = e
}

func (c *Client) Get(key string) (string, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	e, ok := c.entities[key]
	if !ok || !host.Present(e.State) {
		return "", false
	}
	return e.State, true
}

func (c *Client) Attribute(key, name string) (any, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	v, ok := c.entities[key].Attributes[name]
	return v, ok
}

func (c *Client) Keys(domain string) []string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var keys []string
	for key := range c.entities {
		if host.Domain(key) == domain {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// Set writes the state of an entity. The cache is updated with the state returned by Home Assistant.
func (c *Client) Set(ctx context.Context, key string, value any, attrs host.Attributes) error {
	request := struct {
		State      string          `json:"state"`
		Attributes host.Attributes `json:"attributes,omitempty"`
	}{State: host.Format(value), Attributes: attrs}

	var e Entity
	if err := c.call(ctx, http.MethodPost, "/api/states/"+key, request, &e); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if e.EntityID == "" {
		e = Entity{EntityID: key, State: request.State, Attributes: maps.Clone(attrs)}
	}
	c.Update(e)
	return nil
}

// Invoke calls a service. Home Assistant's answer only lists the entities that changed state, so it is ignored: the
// Listener reports the changes.
func (c *Client) Invoke(ctx context.Context, domain, action string, args host.Args) error {
	if args == nil {
		args = host.Args{}
	}
	if err := c.call(ctx, http.MethodPost, "/api/services/"+domain+"/"+action, args, nil); err != nil {
		return fmt.Errorf("%s.%s: %w", domain, action, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body any, response any) error {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if response == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

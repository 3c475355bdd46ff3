package sessionize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"event-quiz-service/internal/domain"
)

// DefaultBaseURL is the public Sessionize API root.
const DefaultBaseURL = "https://sessionize.com/api/v2"

// Client fetches the Sessions view of a Sessionize event. Responses are
// cached with a TTL and concurrent misses collapse into one request; this
// cache is the provider's own and is orthogonal to the schedule sync window.
type Client struct {
	httpClient *http.Client
	baseURL    string
	eventID    string
	ttl        time.Duration
	clock      func() time.Time

	sf singleflight.Group

	mu        sync.RWMutex
	cached    []domain.Talk
	fetchedAt time.Time
}

func NewClient(baseURL, eventID string, ttl time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		eventID:    eventID,
		ttl:        ttl,
		clock:      time.Now,
	}
}

// sessionGroup mirrors the Sessions view payload: a list of groups, each
// carrying its sessions.
type sessionGroup struct {
	Sessions []session `json:"sessions"`
}

type session struct {
	ID               json.Number `json:"id"`
	Title            string      `json:"title"`
	StartsAt         string      `json:"startsAt"`
	EndsAt           string      `json:"endsAt"`
	IsServiceSession bool        `json:"isServiceSession"`
	IsPlenumSession  bool        `json:"isPlenumSession"`
}

// FetchTalks returns every talk in the event schedule. Plenum sessions count
// as service time: they consume schedule but award no content.
func (c *Client) FetchTalks(ctx context.Context) ([]domain.Talk, error) {
	c.mu.RLock()
	if c.cached != nil && c.clock().Sub(c.fetchedAt) < c.ttl {
		talks := cloneTalks(c.cached)
		c.mu.RUnlock()
		return talks, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do("sessions", func() (interface{}, error) {
		c.mu.RLock()
		if c.cached != nil && c.clock().Sub(c.fetchedAt) < c.ttl {
			talks := cloneTalks(c.cached)
			c.mu.RUnlock()
			return talks, nil
		}
		c.mu.RUnlock()

		talks, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cached = talks
		c.fetchedAt = c.clock()
		c.mu.Unlock()
		return cloneTalks(talks), nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Talk), nil
}

func (c *Client) fetch(ctx context.Context) ([]domain.Talk, error) {
	url := fmt.Sprintf("%s/%s/view/Sessions", c.baseURL, c.eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, "build schedule request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "fetch sessions", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, domain.E(domain.KindUnavailable, fmt.Sprintf("sessionize returned %d", resp.StatusCode))
	}

	var groups []sessionGroup
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		return nil, domain.Wrap(domain.KindUnavailable, "decode sessions", err)
	}

	var talks []domain.Talk
	for _, g := range groups {
		for _, s := range g.Sessions {
			startsAt, err := parseSessionTime(s.StartsAt)
			if err != nil {
				return nil, domain.Wrap(domain.KindUnavailable, "parse session start", err)
			}
			endsAt, err := parseSessionTime(s.EndsAt)
			if err != nil {
				return nil, domain.Wrap(domain.KindUnavailable, "parse session end", err)
			}
			talks = append(talks, domain.Talk{
				ID:        s.ID.String(),
				Title:     s.Title,
				StartsAt:  startsAt,
				EndsAt:    endsAt,
				IsService: s.IsServiceSession || s.IsPlenumSession,
			})
		}
	}
	return talks, nil
}

// parseSessionTime handles both the zoned and the zone-less timestamp shapes
// Sessionize emits.
func parseSessionTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", raw)
}

func cloneTalks(talks []domain.Talk) []domain.Talk {
	out := make([]domain.Talk, len(talks))
	copy(out, talks)
	return out
}

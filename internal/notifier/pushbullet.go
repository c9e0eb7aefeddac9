package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const pushbulletAPIURL = "https://api.pushbullet.com/v2"

// PushbulletNotifier sends candidate previews as Pushbullet notes. The
// human answers by pushing back a note whose body is "Accept <id>" or
// "Reject <id>"; Decisions reads and dismisses those replies.
type PushbulletNotifier struct {
	token      string
	httpClient *http.Client
	logger     *zap.Logger

	mu     sync.Mutex
	pushed map[string]string // request ID -> push iden, for Delete
}

var _ Notifier = (*PushbulletNotifier)(nil)

func NewPushbulletNotifier(token string, logger *zap.Logger) (*PushbulletNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("pushbullet token is required")
	}
	return &PushbulletNotifier{
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		pushed:     make(map[string]string),
	}, nil
}

type pushbulletPush struct {
	Iden      string `json:"iden"`
	Active    bool   `json:"active"`
	Dismissed bool   `json:"dismissed"`
	Title     string `json:"title"`
	Body      string `json:"body"`
}

func (n *PushbulletNotifier) Push(ctx context.Context, requestID, preview string) error {
	payload, _ := json.Marshal(map[string]string{
		"type":  "note",
		"title": "Action ID: " + requestID,
		"body":  preview,
	})
	var created pushbulletPush
	if err := n.call(ctx, http.MethodPost, "/pushes", payload, &created); err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	n.mu.Lock()
	n.pushed[requestID] = created.Iden
	n.mu.Unlock()
	n.logger.Info("approval request pushed", zap.String("request_id", requestID))
	return nil
}

func (n *PushbulletNotifier) Decisions(ctx context.Context) ([]string, []string, error) {
	var listing struct {
		Pushes []pushbulletPush `json:"pushes"`
	}
	if err := n.call(ctx, http.MethodGet, "/pushes?active=true", nil, &listing); err != nil {
		return nil, nil, fmt.Errorf("failed to list pushes: %w", err)
	}

	var approved, rejected []string
	for _, p := range listing.Pushes {
		if p.Dismissed {
			continue
		}
		body := strings.TrimSpace(p.Body)
		var id string
		switch {
		case strings.HasPrefix(body, "Accept "):
			id = strings.TrimSpace(strings.TrimPrefix(body, "Accept "))
			approved = append(approved, id)
		case strings.HasPrefix(body, "Reject "):
			id = strings.TrimSpace(strings.TrimPrefix(body, "Reject "))
			rejected = append(rejected, id)
		default:
			continue
		}
		// Dismiss the reply so it is only counted once.
		if err := n.dismiss(ctx, p.Iden); err != nil {
			n.logger.Warn("failed to dismiss decision push",
				zap.String("iden", p.Iden), zap.Error(err))
		}
	}
	return approved, rejected, nil
}

func (n *PushbulletNotifier) Delete(ctx context.Context, requestID string) error {
	n.mu.Lock()
	iden, ok := n.pushed[requestID]
	delete(n.pushed, requestID)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	if err := n.call(ctx, http.MethodDelete, "/pushes/"+iden, nil, nil); err != nil {
		return fmt.Errorf("failed to delete push for %s: %w", requestID, err)
	}
	return nil
}

func (n *PushbulletNotifier) dismiss(ctx context.Context, iden string) error {
	payload, _ := json.Marshal(map[string]bool{"dismissed": true})
	return n.call(ctx, http.MethodPost, "/pushes/"+iden, payload, nil)
}

func (n *PushbulletNotifier) call(ctx context.Context, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, pushbulletAPIURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Access-Token", n.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushbullet returned status %d", resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

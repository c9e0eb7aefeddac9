package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	dropboxTokenURL   = "https://api.dropboxapi.com/oauth2/token"
	dropboxAPIURL     = "https://api.dropboxapi.com/2"
	dropboxContentURL = "https://content.dropboxapi.com/2"
)

// DropboxBackend stores blobs in a Dropbox app folder. The long-lived
// refresh token is exchanged for short-lived access tokens by the oauth2
// token source, transparently to callers; a failed refresh surfaces as
// ErrAuth.
type DropboxBackend struct {
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Backend = (*DropboxBackend)(nil)

type DropboxConfig struct {
	RefreshToken string
	AppKey       string
	AppSecret    string
}

func NewDropboxBackend(ctx context.Context, cfg DropboxConfig, logger *zap.Logger) (*DropboxBackend, error) {
	if cfg.RefreshToken == "" || cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("%w: dropbox refresh token, app key and app secret must all be set", ErrAuth)
	}
	conf := &oauth2.Config{
		ClientID:     cfg.AppKey,
		ClientSecret: cfg.AppSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: dropboxTokenURL},
	}
	src := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = 30 * time.Second

	b := &DropboxBackend{httpClient: client, logger: logger}
	logger.Info("Dropbox backend initialized")
	return b, nil
}

func (b *DropboxBackend) Name() string { return "dropbox" }

func (b *DropboxBackend) Get(ctx context.Context, key string) ([]byte, error) {
	arg, _ := json.Marshal(map[string]string{"path": "/" + key})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dropboxContentURL+"/files/download", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := b.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := b.checkStatus(resp, key); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from Dropbox: %w", key, err)
	}
	return data, nil
}

func (b *DropboxBackend) Put(ctx context.Context, key string, data []byte) error {
	arg, _ := json.Marshal(map[string]any{
		"path": "/" + key,
		"mode": "overwrite",
		"mute": true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dropboxContentURL+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return b.checkStatus(resp, key)
}

func (b *DropboxBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	body := map[string]any{"path": "", "recursive": true}
	endpoint := dropboxAPIURL + "/files/list_folder"

	for {
		resp, err := b.rpc(ctx, endpoint, body)
		if err != nil {
			return nil, err
		}
		var page struct {
			Entries []struct {
				Tag       string `json:".tag"`
				PathLower string `json:"path_lower"`
			} `json:"entries"`
			Cursor  string `json:"cursor"`
			HasMore bool   `json:"has_more"`
		}
		if err := json.Unmarshal(resp, &page); err != nil {
			return nil, fmt.Errorf("failed to decode Dropbox listing: %w", err)
		}
		for _, e := range page.Entries {
			key := strings.TrimPrefix(e.PathLower, "/")
			if e.Tag == "file" && strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
		if !page.HasMore {
			return keys, nil
		}
		endpoint = dropboxAPIURL + "/files/list_folder/continue"
		body = map[string]any{"cursor": page.Cursor}
	}
}

func (b *DropboxBackend) Delete(ctx context.Context, key string) error {
	_, err := b.rpc(ctx, dropboxAPIURL+"/files/delete_v2", map[string]string{"path": "/" + key})
	return err
}

// rpc posts a JSON body to an api.dropboxapi.com endpoint and returns
// the raw response body.
func (b *DropboxBackend) rpc(ctx context.Context, endpoint string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode Dropbox request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create Dropbox request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := b.checkStatus(resp, endpoint); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// do sends the request, mapping token refresh failures to ErrAuth.
func (b *DropboxBackend) do(req *http.Request) (*http.Response, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			b.logger.Error("Dropbox token refresh failed", zap.Error(err))
			return nil, fmt.Errorf("%w: token refresh failed: %v", ErrAuth, err)
		}
		return nil, fmt.Errorf("dropbox request failed: %w", err)
	}
	return resp, nil
}

func (b *DropboxBackend) checkStatus(resp *http.Response, subject string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: dropbox rejected the access token", ErrAuth)
	case resp.StatusCode == http.StatusConflict:
		// 409 carries a structured error; not_found is the common case.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if strings.Contains(string(body), "not_found") {
			return fmt.Errorf("%w: %s", ErrNotFound, subject)
		}
		return fmt.Errorf("dropbox conflict for %s: %s", subject, string(body))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("dropbox returned status %d for %s: %s", resp.StatusCode, subject, string(body))
	}
}

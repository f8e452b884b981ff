// workers/player_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"codeisles-arena/models"
	"codeisles-arena/store"
	"codeisles-arena/utils"
)

// MirroredProfile is the part of the profile service response the battle profiles use.
type MirroredProfile struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	FirstName  *string   `json:"first_name,omitempty"`
	LastName   *string   `json:"last_name,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GetProfileChangesResponse is the top-level structure of the sync service response.
type GetProfileChangesResponse struct {
	Users []MirroredProfile `json:"users"`
}

// DisplayName prefers the username, falling back to the full name.
func (p MirroredProfile) DisplayName() string {
	if name := strings.TrimSpace(p.Username); name != "" {
		return name
	}
	var parts []string
	for _, s := range []*string{p.FirstName, p.LastName} {
		if s != nil && strings.TrimSpace(*s) != "" {
			parts = append(parts, strings.TrimSpace(*s))
		}
	}
	return strings.Join(parts, " ")
}

// PlayerSyncWorker mirrors display names from the profile service into player profiles.
type PlayerSyncWorker struct {
	store        store.Store
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/profiles"
	serviceToken string
	httpClient   *http.Client

	lastSync time.Time // owned by the run goroutine
}

func NewPlayerSyncWorker(st store.Store, syncServiceBaseURL, endpointPath, serviceToken string) *PlayerSyncWorker {
	return &PlayerSyncWorker{
		store:        st,
		interval:     1 * time.Minute,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *PlayerSyncWorker) Start(ctx context.Context) {
	log.Info().Msg("🔁 Starting Player Sync Worker (sync-service → players)…")
	go w.run(ctx)
}

func (w *PlayerSyncWorker) run(ctx context.Context) {
	// Initial sync from the beginning of time
	if err := w.SyncOnce(ctx); err != nil {
		log.Warn().Err(err).Msg("[SYNC] ⚠️ initial sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				log.Error().Err(err).Msg("[SYNC] ❌ sync batch failed")
			}
		case <-ctx.Done():
			log.Info().Msg("⏹️ Player Sync Worker stopped")
			return
		}
	}
}

// SyncOnce fetches profile changes since the last successful batch and upserts them.
func (w *PlayerSyncWorker) SyncOnce(ctx context.Context) error {
	users, err := w.fetch(ctx, w.lastSync)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		log.Debug().Time("since", w.lastSync).Msg("[SYNC] ✅ no profile changes")
		return nil
	}

	var upserted, failed int
	latest := w.lastSync
	for _, remote := range users {
		if remote.ExternalID == "" {
			continue
		}
		name := remote.DisplayName()
		if name == "" {
			// a blank profile must not wipe a stored name
			if remote.UpdatedAt.After(latest) {
				latest = remote.UpdatedAt
			}
			continue
		}
		err := w.store.UpsertPlayer(ctx, &models.Player{
			PlayerID:    remote.ExternalID,
			DisplayName: name,
		})
		if err != nil {
			failed++
			log.Warn().Err(err).Str("external_id", remote.ExternalID).Msg("[SYNC] ⚠️ failed to upsert player")
			continue
		}
		upserted++
		if remote.UpdatedAt.After(latest) {
			latest = remote.UpdatedAt
		}
	}

	// a failed row is retried by the next batch
	if failed == 0 {
		w.lastSync = latest
	}

	log.Info().Int("received", len(users)).Int("upserted", upserted).Int("errors", failed).
		Time("latest", latest).Msg("[SYNC] ✅ synced player profiles")
	return nil
}

func (w *PlayerSyncWorker) fetch(ctx context.Context, since time.Time) ([]MirroredProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid sync service URL %q", w.baseURL)
	}

	// Safely join base URL and endpoint path (handles trailing/leading slashes)
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create request to %s", finalURL)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "HTTP request to sync service failed")
	}
	defer func() {
		// Always drain & close to prevent connection leaks
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, eris.Errorf("sync service returned %d: %s", resp.StatusCode, string(body))
	}

	var response GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, eris.Wrap(err, "failed to decode sync service response")
	}
	return response.Users, nil
}

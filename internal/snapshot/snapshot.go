// Package snapshot keeps a lock-free read view of the latest per-service
// state, so the status endpoint never touches the database on the hot path.
package snapshot

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"servicepulse/internal/models"
)

// ServiceView is what the API exposes per service.
type ServiceView struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	Target           string   `json:"target"`
	Status           string   `json:"status"`
	IsActive         bool     `json:"is_active"`
	LastCheckedAt    string   `json:"last_checked_at,omitempty"`
	LatencyMS        float64  `json:"latency_ms"`
	UptimePct        float64  `json:"uptime_pct"`
	ConsecutiveFails int      `json:"consecutive_failures"`
	Tags             []string `json:"tags,omitempty"`
	GroupName        string   `json:"group_name,omitempty"`
}

// Snapshot is the read-only view handed to the API.
type Snapshot struct {
	GeneratedAt string        `json:"generated_at"`
	Services    []ServiceView `json:"services"`
}

// Board collects per-service views and republishes an immutable snapshot
// after every change.
type Board struct {
	mu      sync.Mutex
	views   map[uuid.UUID]ServiceView
	current atomic.Value // Snapshot
}

func NewBoard() *Board {
	return &Board{views: make(map[uuid.UUID]ServiceView)}
}

// Update replaces the view for one service and republishes.
func (b *Board) Update(svc *models.Service) {
	view := ServiceView{
		ID:               svc.ID.String(),
		Name:             svc.Name,
		Type:             string(svc.Type),
		Target:           svc.Target,
		Status:           string(svc.Status),
		IsActive:         svc.IsActive,
		LatencyMS:        svc.LastResponseTimeMS,
		UptimePct:        svc.UptimePercentage,
		ConsecutiveFails: svc.ConsecutiveFails,
		Tags:             svc.Tags,
		GroupName:        svc.GroupName,
	}
	if svc.LastCheckAt != nil {
		view.LastCheckedAt = svc.LastCheckAt.UTC().Format(time.RFC3339)
	}

	b.mu.Lock()
	b.views[svc.ID] = view
	b.publishLocked()
	b.mu.Unlock()
}

// Remove drops a deleted service from the snapshot.
func (b *Board) Remove(id uuid.UUID) {
	b.mu.Lock()
	delete(b.views, id)
	b.publishLocked()
	b.mu.Unlock()
}

// Current returns the latest snapshot; zero-value before any publish.
func (b *Board) Current() Snapshot {
	if v := b.current.Load(); v != nil {
		return v.(Snapshot)
	}
	return Snapshot{}
}

func (b *Board) publishLocked() {
	all := make([]ServiceView, 0, len(b.views))
	for _, v := range b.views {
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	b.current.Store(Snapshot{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Services:    all,
	})
}

package message

import (
	"time"

	"github.com/hazyhaar/feedsweep/idgen"
)

// Notification tags.
const (
	TypeCountersUpdate Type = "COUNTERS_UPDATE"
	TypeNetworkWarning Type = "NETWORK_WARNING"
	// TypeLegacyCount carries only the relationship-removal count, for older
	// panels.
	TypeLegacyCount Type = "updateUnfollow"
)

// Counts is the payload of COUNTERS_UPDATE.
type Counts struct {
	SuppressedCount          int `json:"suppressedCount"`
	RelationshipRemovedCount int `json:"relationshipRemovedCount"`
	TotalActionCount         int `json:"totalActionCount"`
}

// Notification is an outbound event for control surfaces.
type Notification struct {
	ID        string  `json:"id"`
	Type      Type    `json:"type"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
	Counts    *Counts `json:"counts,omitempty"`
	Count     *int    `json:"count,omitempty"`
}

// CountersUpdate builds a COUNTERS_UPDATE notification.
func CountersUpdate(c Counts) Notification {
	return newNotification(TypeCountersUpdate, func(n *Notification) { n.Counts = &c })
}

// LegacyCount builds the legacy count notification.
func LegacyCount(relationshipsRemoved int) Notification {
	return newNotification(TypeLegacyCount, func(n *Notification) { n.Count = &relationshipsRemoved })
}

// NetworkWarning builds a NETWORK_WARNING notification.
func NetworkWarning() Notification {
	return newNotification(TypeNetworkWarning, nil)
}

func newNotification(t Type, fill func(*Notification)) Notification {
	n := Notification{
		ID:        idgen.New(),
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
	}
	if fill != nil {
		fill(&n)
	}
	return n
}

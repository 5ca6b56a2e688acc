package session

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/hazyhaar/feedsweep/sweeper/internal/store"
)

// Persisted keys. Each is independently readable and writable.
const (
	KeyRunning              = "running"
	KeySuppressAds          = "suppressAds"
	KeySuppressSuggested    = "suppressSuggested"
	KeyForeignScriptLock    = "foreignScriptLock"
	KeyScrollDelaySeconds   = "scrollDelaySeconds"
	KeyActionsBeforeReload  = "actionsBeforeReload"
	KeyKeywordFilterEnabled = "keywordFilterEnabled"
	KeyKeywordFilterText    = "keywordFilterText"
	KeyHumanPacingEnabled   = "humanPacingEnabled"

	KeySuppressedCount          = "suppressedCount"
	KeyRelationshipRemovedCount = "relationshipRemovedCount"
	KeyTotalActionCount         = "totalActionCount"
	KeyActionsSinceReload       = "actionsSinceReload"
	KeyKeywordMatchCount        = "keywordMatchCount"

	KeyNetworkWarning = "networkWarning"
)

// Persisted is everything the engine restores at start.
type Persisted struct {
	Config         Config   `json:"config"`
	Counters       Counters `json:"counters"`
	NetworkWarning bool     `json:"networkWarning"`
}

// Load reads the persisted state, starting from defaults. Missing or
// unparsable keys keep their default; numeric fields are clamped.
// ActionsSinceReload always starts at 0.
func Load(ctx context.Context, st store.Store, defaults Config) (Persisted, error) {
	all, err := st.All(ctx)
	if err != nil {
		return Persisted{Config: defaults}, err
	}

	p := Persisted{Config: defaults}
	c := &p.Config
	readBool(all, KeyRunning, &c.Running)
	readBool(all, KeySuppressAds, &c.SuppressAds)
	readBool(all, KeySuppressSuggested, &c.SuppressSuggested)
	readBool(all, KeyForeignScriptLock, &c.ForeignScriptLock)
	readInt(all, KeyScrollDelaySeconds, &c.ScrollDelaySeconds)
	readInt(all, KeyActionsBeforeReload, &c.ActionsBeforeReload)
	readBool(all, KeyKeywordFilterEnabled, &c.KeywordFilterEnabled)
	if v, ok := all[KeyKeywordFilterText]; ok {
		c.KeywordFilterText = v
	}
	readBool(all, KeyHumanPacingEnabled, &c.HumanPacingEnabled)
	c.Normalize()

	n := &p.Counters
	readInt(all, KeySuppressedCount, &n.Suppressed)
	readInt(all, KeyRelationshipRemovedCount, &n.RelationshipsRemoved)
	readInt(all, KeyKeywordMatchCount, &n.KeywordMatches)
	n.TotalActions = n.Suppressed + n.RelationshipsRemoved

	readBool(all, KeyNetworkWarning, &p.NetworkWarning)
	return p, nil
}

// ConfigValues maps every configuration field to its persisted key.
func ConfigValues(c Config) map[string]string {
	return map[string]string{
		KeyRunning:              strconv.FormatBool(c.Running),
		KeySuppressAds:          strconv.FormatBool(c.SuppressAds),
		KeySuppressSuggested:    strconv.FormatBool(c.SuppressSuggested),
		KeyForeignScriptLock:    strconv.FormatBool(c.ForeignScriptLock),
		KeyScrollDelaySeconds:   strconv.Itoa(c.ScrollDelaySeconds),
		KeyActionsBeforeReload:  strconv.Itoa(c.ActionsBeforeReload),
		KeyKeywordFilterEnabled: strconv.FormatBool(c.KeywordFilterEnabled),
		KeyKeywordFilterText:    c.KeywordFilterText,
		KeyHumanPacingEnabled:   strconv.FormatBool(c.HumanPacingEnabled),
	}
}

// CounterValues maps the counters to their persisted keys.
func CounterValues(n Counters) map[string]string {
	return map[string]string{
		KeySuppressedCount:          strconv.Itoa(n.Suppressed),
		KeyRelationshipRemovedCount: strconv.Itoa(n.RelationshipsRemoved),
		KeyTotalActionCount:         strconv.Itoa(n.TotalActions),
		KeyActionsSinceReload:       strconv.Itoa(n.ActionsSinceReload),
		KeyKeywordMatchCount:        strconv.Itoa(n.KeywordMatches),
	}
}

// Persist writes values key by key. Writes are fire-and-forget: failures are
// logged and never reach the caller.
func Persist(ctx context.Context, st store.Store, logger *slog.Logger, values map[string]string) {
	for k, v := range values {
		if err := st.Set(ctx, k, v); err != nil {
			logger.Warn("session: persist failed", "key", k, "error", err)
		}
	}
}

func readBool(all map[string]string, key string, dst *bool) {
	if v, ok := all[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func readInt(all map[string]string, key string, dst *int) {
	if v, ok := all[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

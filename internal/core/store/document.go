package store

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/feedmeta/feedmeta/internal/core"
)

// documentName keys the single state row.
const documentName = "state"

type rawDocument struct {
	SchemaVersion int                        `json:"schemaVersion"`
	Users         map[string]json.RawMessage `json:"users"`
	Settings      map[string]any             `json:"settings"`
}

// decodeDocument turns a stored body into normalised state. The boolean
// reports whether normalisation changed anything and the result should be
// written back. An empty or unreadable body yields defaults.
func decodeDocument(body []byte) (*core.State, bool) {
	if len(body) == 0 {
		return core.NewState(), true
	}

	var raw rawDocument
	if err := json.Unmarshal(body, &raw); err != nil {
		return core.NewState(), true
	}

	state := core.NewState()
	needsSave := false

	settings, err := core.DecodeSettings(raw.Settings)
	if err != nil {
		settings = core.DefaultSettings()
		needsSave = true
	}
	state.Settings = settings
	if normalized, err := settingsMap(settings); err != nil || !reflect.DeepEqual(normalized, raw.Settings) {
		needsSave = true
	}

	if raw.SchemaVersion != core.SchemaVersion {
		// no migration across versions: cached entries are dropped
		return state, true
	}

	for key, data := range raw.Users {
		var entry core.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			needsSave = true
			continue
		}
		normalized := entry.Normalize()
		if normalized != entry {
			needsSave = true
		}
		state.Users[key] = normalized
	}

	return state, needsSave
}

func encodeDocument(state *core.State) ([]byte, error) {
	if state == nil {
		state = core.NewState()
	}
	doc := *state
	doc.SchemaVersion = core.SchemaVersion
	if doc.Users == nil {
		doc.Users = map[string]core.CacheEntry{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return body, nil
}

func settingsMap(s core.Settings) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

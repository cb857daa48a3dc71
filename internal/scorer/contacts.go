package scorer

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/utility-lookup/internal/model"
)

// contactEntry is one row of provider_contacts.json. Label records which
// utility type the contact was collected for; MatchMethod records how the
// row was originally keyed and flags risky substring-derived entries.
type contactEntry struct {
	Phone       string `json:"phone"`
	URL         string `json:"url"`
	Label       string `json:"label"`
	MatchMethod string `json:"match_method"`
}

// typeSuffixes are the name variants tried when a provider's contact row is
// keyed with an explicit type suffix ("Oncor Electric Delivery Electric").
var typeSuffixes = map[model.UtilityType][]string{
	model.UtilityElectric: {"Electric", "Electric-", "Power"},
	model.UtilityGas:      {"Gas", "Energy"},
	model.UtilityWater:    {"Water", "Water Utility", "Water Utilities"},
	model.UtilitySewer:    {"Sewer", "Wastewater"},
}

// ContactTable holds provider phone/website records keyed by canonical key or
// display name. The zero value is an empty table.
type ContactTable struct {
	entries map[string]contactEntry
	byLower map[string]contactEntry
}

// LoadContacts reads provider_contacts.json. A missing file yields an empty
// table.
func LoadContacts(path string) (*ContactTable, error) {
	t := &ContactTable{}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		zap.L().Warn("contacts: file missing", zap.String("path", path))
		return t, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "contacts: read")
	}
	if err := json.Unmarshal(raw, &t.entries); err != nil {
		return nil, eris.Wrap(err, "contacts: parse")
	}
	t.byLower = make(map[string]contactEntry, len(t.entries))
	for k, v := range t.entries {
		t.byLower[strings.ToLower(k)] = v
	}
	zap.L().Info("contacts: loaded", zap.Int("providers", len(t.entries)))
	return t, nil
}

// Find returns the best contact for a provider, preferring entries labeled
// with the current utility type so an electric lookup does not pick up a
// water phone number for a similarly-named entity.
func (t *ContactTable) Find(displayName, canonicalID string, utility model.UtilityType) (phone, website string) {
	if len(t.entries) == 0 {
		return "", ""
	}
	utype := strings.ToLower(string(utility))
	typeMatch := func(e contactEntry) bool {
		label := strings.ToLower(e.Label)
		return label == "" || label == utype
	}

	var contact *contactEntry
	pick := func(e contactEntry, ok bool) bool {
		if ok && typeMatch(e) {
			contact = &e
			return true
		}
		return false
	}

	if canonicalID != "" {
		e, ok := t.entries[canonicalID]
		pick(e, ok)
	}
	if contact == nil {
		e, ok := t.entries[displayName]
		pick(e, ok)
	}
	if contact == nil {
		e, ok := t.byLower[strings.ToLower(displayName)]
		pick(e, ok)
	}
	if contact == nil {
		for _, suffix := range typeSuffixes[utility] {
			for _, variant := range []string{displayName + " " + suffix, displayName + "-" + suffix} {
				e, ok := t.entries[variant]
				if !ok {
					e, ok = t.byLower[strings.ToLower(variant)]
				}
				if ok {
					contact = &e
					break
				}
			}
			if contact != nil {
				break
			}
		}
	}

	// Last resort: accept a cross-type entry rather than nothing, except
	// substring-derived rows whose label contradicts the lookup type.
	if contact == nil {
		var e contactEntry
		var ok bool
		if canonicalID != "" {
			e, ok = t.entries[canonicalID]
		}
		if !ok {
			e, ok = t.entries[displayName]
		}
		if !ok {
			e, ok = t.byLower[strings.ToLower(displayName)]
		}
		if ok {
			label := strings.ToLower(e.Label)
			if e.MatchMethod == "substring" && label != "" && label != utype {
				ok = false
			}
		}
		if ok {
			contact = &e
		}
	}

	if contact == nil {
		return "", ""
	}
	return contact.Phone, contact.URL
}

package pull

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/dredge/types"
)

// additionalFields is the fixed additional_fields query parameter value
// requested on every report pull.
const additionalFields = "match_type"

// Reference is the deterministic request identity for one report target.
// A pending request is re-issued under the same Reference across retry
// rounds; distinct targets always yield distinct URLs.
type Reference struct {
	// URL is the fully qualified request URL.
	URL string
	// Target is the originating report target.
	Target types.ReportTarget
}

// BuildTargets produces the per-run target set: the cross product of the
// configured applications and report kinds, each resolved against the
// window. Order is deterministic (iOS first, kinds in declaration order).
func BuildTargets(appIOS, appAndroid string, kinds []types.ReportKind, window types.Window) []types.ReportTarget {
	apps := []struct {
		id       string
		platform types.Platform
	}{
		{appIOS, types.PlatformIOS},
		{appAndroid, types.PlatformAndroid},
	}

	targets := make([]types.ReportTarget, 0, len(apps)*len(kinds))
	for _, app := range apps {
		if app.id == "" {
			continue
		}
		for _, kind := range kinds {
			targets = append(targets, types.ReportTarget{
				AppID:    app.id,
				Platform: app.platform,
				Kind:     kind,
				Window:   window,
			})
		}
	}
	return targets
}

// BuildReferences derives one Reference per target. Pure: no I/O, no state
// beyond inputs. Credentials are not part of the URL; they travel in the
// request headers.
func BuildReferences(baseURL string, targets []types.ReportTarget) []Reference {
	base := strings.TrimSuffix(baseURL, "/")

	refs := make([]Reference, 0, len(targets))
	for _, t := range targets {
		url := fmt.Sprintf("%s/raw-data/export/app/%s/%s/v5?from=%s&to=%s&additional_fields=%s",
			base, t.AppID, t.Kind, t.Window.FromParam(), t.Window.ToParam(), additionalFields)
		refs = append(refs, Reference{URL: url, Target: t})
	}
	return refs
}

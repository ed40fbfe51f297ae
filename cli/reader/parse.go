package reader

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pithecene-io/dredge/types"
)

// ReportNameParts are the fields recoverable from a provider-assigned
// report filename.
type ReportNameParts struct {
	AppID string
	Kind  types.ReportKind
	From  string
	To    string
}

// datePattern matches YYYY-MM-DD fragments in a filename.
var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// ParseReportName extracts app, kind, and window fields from a report
// filename. The provider assigns the names, so parsing is best-effort:
// ok is false when no known report kind appears in the name, and the
// window fields are empty when the name carries no dates.
//
// The longest matching kind wins; installs_report is a substring of
// organic_installs_report.
func ParseReportName(name string) (ReportNameParts, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))

	kindIdx := -1
	var kind types.ReportKind
	for _, k := range types.AllReportKinds() {
		idx := strings.Index(base, string(k))
		if idx < 0 {
			continue
		}
		if len(k) > len(kind) {
			kind = k
			kindIdx = idx
		}
	}
	if kindIdx < 0 {
		return ReportNameParts{}, false
	}

	parts := ReportNameParts{
		AppID: strings.Trim(base[:kindIdx], "_- "),
		Kind:  kind,
	}

	// Dates are only searched after the kind so app identifiers can
	// never be mistaken for window bounds.
	dates := datePattern.FindAllString(base[kindIdx+len(kind):], -1)
	if len(dates) > 0 {
		parts.From = dates[0]
	}
	if len(dates) > 1 {
		parts.To = dates[1]
	}
	return parts, true
}

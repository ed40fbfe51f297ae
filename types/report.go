// Package types defines core domain types for the dredge pipeline.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"time"
)

// DayFormat is the date layout used in report query parameters.
const DayFormat = "2006-01-02"

// Platform identifies which application build a report belongs to.
type Platform string

const (
	// PlatformIOS is the iOS application.
	PlatformIOS Platform = "ios"
	// PlatformAndroid is the Android application.
	PlatformAndroid Platform = "android"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid
}

// ReportKind is a raw-data Pull API report endpoint.
type ReportKind string

const (
	// ReportKindInstalls is the non-organic installs report.
	ReportKindInstalls ReportKind = "installs_report"
	// ReportKindInAppEvents is the non-organic in-app events report.
	ReportKindInAppEvents ReportKind = "in_app_events_report"
	// ReportKindOrganicInstalls is the organic installs report.
	ReportKindOrganicInstalls ReportKind = "organic_installs_report"
	// ReportKindOrganicInAppEvents is the organic in-app events report.
	ReportKindOrganicInAppEvents ReportKind = "organic_in_app_events_report"
)

// AllReportKinds returns every report kind in declaration order.
func AllReportKinds() []ReportKind {
	return []ReportKind{
		ReportKindInstalls,
		ReportKindInAppEvents,
		ReportKindOrganicInstalls,
		ReportKindOrganicInAppEvents,
	}
}

// Valid reports whether k is a known report kind.
func (k ReportKind) Valid() bool {
	switch k {
	case ReportKindInstalls, ReportKindInAppEvents,
		ReportKindOrganicInstalls, ReportKindOrganicInAppEvents:
		return true
	}
	return false
}

// Window is the reporting period embedded in a reference URL.
// Start maps to the "from" query parameter and Stop to "to".
// The provider accepts Start later than Stop; the default window is
// built that way (yesterday down to the day before).
type Window struct {
	// Start is the "from" date.
	Start time.Time
	// Stop is the "to" date.
	Stop time.Time
}

// DefaultWindow returns the standard single-day window relative to now:
// Start is the previous calendar day, Stop the day before that.
func DefaultWindow(now time.Time) Window {
	start := now.AddDate(0, 0, -1)
	return Window{Start: start, Stop: start.AddDate(0, 0, -1)}
}

// FromParam returns Start formatted for the "from" query parameter.
func (w Window) FromParam() string { return w.Start.Format(DayFormat) }

// ToParam returns Stop formatted for the "to" query parameter.
func (w Window) ToParam() string { return w.Stop.Format(DayFormat) }

// Validate checks that both window dates are set.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.Stop.IsZero() {
		return errors.New("window requires both start and stop dates")
	}
	return nil
}

// ReportTarget is one (application, report kind) pair resolved against a
// reporting window. Immutable; the full per-run set is the cross product
// of configured applications and report kinds.
type ReportTarget struct {
	// AppID is the provider-side application identifier.
	AppID string
	// Platform is the application platform the AppID belongs to.
	Platform Platform
	// Kind is the report endpoint to pull.
	Kind ReportKind
	// Window is the reporting period.
	Window Window
}

// Validate checks that the target is complete and well formed.
func (t ReportTarget) Validate() error {
	if t.AppID == "" {
		return errors.New("report target requires an application id")
	}
	if !t.Platform.Valid() {
		return fmt.Errorf("unknown platform %q", t.Platform)
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("unknown report kind %q", t.Kind)
	}
	return t.Window.Validate()
}

// Package logging centralizes the structured-logging conventions shared by
// every session component: a *logrus.Entry per component, tagged with a
// "component" field (callers add further fields, such as objectId, on top
// of it). Grounded on the pervasive
// logrus.WithFields(...) idiom used across the acamarata-nself-tv services
// in the reference pack.
package logging

import "github.com/sirupsen/logrus"

// Component returns a *logrus.Entry scoped to a named session component
// (e.g. "session", "manager", "subscription"). If base is nil, the
// package-level standard logger is used.
func Component(base *logrus.Logger, name string) *logrus.Entry {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return base.WithField("component", name)
}

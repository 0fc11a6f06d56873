// Package logging sets up process-wide structured logging. It replaces a
// bare log.Printf("component: ...") prefix convention with logrus fields,
// so an operator can filter by component, node, attribute, or resource
// instead of grepping a prefix.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

var root = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel adjusts the process-wide log level (e.g. from a --log-level flag).
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		root.Warnf("logging: unknown level %q, keeping %s", level, root.GetLevel())
		return
	}
	root.SetLevel(lvl)
}

// For returns a component-scoped logger. Callers further annotate it with
// WithField for request-scoped context (node, attribute, resource, session).
func For(component string) *logrus.Entry {
	return root.WithField("component", component)
}

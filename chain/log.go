package chain

import "github.com/sirupsen/logrus"

var logger logrus.FieldLogger = logrus.StandardLogger().WithField("component", "chain")

// SetLogger replaces the package logger. A nil logger restores the default.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger().WithField("component", "chain")
	}
	logger = l
}

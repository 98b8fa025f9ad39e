package pixelmap

import "github.com/sirupsen/logrus"

// logger is used by engines and scenes that were not given their own.
var logger logrus.FieldLogger = logrus.StandardLogger().WithField("component", "pixelmap")

// SetLogger replaces the package logger. Engines and scenes created
// afterwards without an explicit Logger use it.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger().WithField("component", "pixelmap")
	}
	logger = l
}

package logging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	waLog "go.mau.fi/whatsmeow/util/log"
)

type meowLogger struct {
	entry *logrus.Entry
}

// WhatsMeow adapts entry to the whatsmeow logger interface.
func WhatsMeow(entry *logrus.Entry) waLog.Logger {
	return meowLogger{entry: entry}
}

func (l meowLogger) Warnf(msg string, args ...interface{})  { l.entry.Warnf(msg, args...) }
func (l meowLogger) Errorf(msg string, args ...interface{}) { l.entry.Errorf(msg, args...) }
func (l meowLogger) Infof(msg string, args ...interface{})  { l.entry.Infof(msg, args...) }
func (l meowLogger) Debugf(msg string, args ...interface{}) { l.entry.Debugf(msg, args...) }

func (l meowLogger) Sub(module string) waLog.Logger {
	if parent, ok := l.entry.Data["module"].(string); ok && parent != "" {
		module = parent + "/" + module
	}
	return meowLogger{entry: l.entry.WithField("module", module)}
}

// MQTT satisfies the paho logger interface, writing every line at level.
type MQTT struct {
	Entry *logrus.Entry
	Level logrus.Level
}

func (l MQTT) Println(v ...interface{}) {
	l.Entry.Log(l.Level, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l MQTT) Printf(format string, v ...interface{}) {
	l.Entry.Logf(l.Level, format, v...)
}

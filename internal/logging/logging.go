// Copyright 2019 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides named loggers that share a single line format.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const timeFormat = "2006/01/02 15:04:05.000000"

var (
	mu      sync.Mutex
	loggers = make(map[string]*Logger)
	level   = logrus.InfoLevel
	out     io.Writer = os.Stderr
)

// Logger is a logrus logger that prefixes every entry with its name.
type Logger struct {
	logrus.Logger

	name string
}

// Format renders e as "timestamp name[pid] <LEVEL>: message fields".
func (l *Logger) Format(e *logrus.Entry) ([]byte, error) {
	str := fmt.Sprintf("%s %s[%d] <%s>: %s",
		e.Time.Format(timeFormat),
		l.name,
		os.Getpid(),
		strings.ToUpper(e.Level.String()),
		e.Message)
	if len(e.Data) != 0 {
		str += fmt.Sprintf(" %v", e.Data)
	}
	return []byte(str + "\n"), nil
}

func newLogger(name string) *Logger {
	l := &Logger{name: name}
	l.Out = out
	l.Formatter = l
	l.Level = level
	l.Hooks = make(logrus.LevelHooks)
	l.ExitFunc = os.Exit
	return l
}

// GetLogger returns the logger for name, creating it on first use.
func GetLogger(name string) *Logger {
	mu.Lock()
	defer mu.Unlock()

	if logger, ok := loggers[name]; ok {
		return logger
	}
	logger := newLogger(name)
	loggers[name] = logger
	return logger
}

// SetLevel sets the level of all current and future loggers.
func SetLevel(lvl logrus.Level) {
	mu.Lock()
	defer mu.Unlock()

	level = lvl
	for _, logger := range loggers {
		logger.SetLevel(lvl)
	}
}

// SetOutput redirects all current and future loggers to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	out = w
	for _, logger := range loggers {
		logger.SetOutput(w)
	}
}

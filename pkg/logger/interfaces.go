/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"io"

	"github.com/rs/zerolog"
)

// Logger is the structured logging interface injected into every
// component. It exposes zerolog's fluent event API.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	Panic() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

// FromZerolog wraps a derived zerolog.Logger back into the Logger
// interface, for components that bind fields once at construction.
func FromZerolog(zl zerolog.Logger) Logger {
	return &zlLogger{zl: zl}
}

type zlLogger struct {
	zl zerolog.Logger
}

func (l *zlLogger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *zlLogger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *zlLogger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *zlLogger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *zlLogger) Error() *zerolog.Event { return l.zl.Error() }
func (l *zlLogger) Fatal() *zerolog.Event { return l.zl.Fatal() }
func (l *zlLogger) Panic() *zerolog.Event { return l.zl.Panic() }
func (l *zlLogger) With() zerolog.Context { return l.zl.With() }
func (l *zlLogger) WithComponent(component string) zerolog.Logger {
	return l.zl.With().Str("component", component).Logger()
}
func (l *zlLogger) SetLevel(level zerolog.Level) { l.zl = l.zl.Level(level) }
func (*zlLogger) SetDebug(_ bool)                { /* level is fixed on derived loggers */ }

// NewTestLogger creates a no-op logger for tests that discards all output.
func NewTestLogger() Logger {
	nop := zerolog.New(io.Discard).Level(zerolog.Disabled)
	return &testLogger{nop: nop}
}

type testLogger struct {
	nop zerolog.Logger
}

func (t *testLogger) Trace() *zerolog.Event { return t.nop.Trace() }
func (t *testLogger) Debug() *zerolog.Event { return t.nop.Debug() }
func (t *testLogger) Info() *zerolog.Event  { return t.nop.Info() }
func (t *testLogger) Warn() *zerolog.Event  { return t.nop.Warn() }
func (t *testLogger) Error() *zerolog.Event { return t.nop.Error() }
func (t *testLogger) Fatal() *zerolog.Event { return t.nop.Fatal() }
func (t *testLogger) Panic() *zerolog.Event { return t.nop.Panic() }
func (t *testLogger) With() zerolog.Context { return t.nop.With() }
func (t *testLogger) WithComponent(component string) zerolog.Logger {
	return t.nop.With().Str("component", component).Logger()
}
func (t *testLogger) SetLevel(level zerolog.Level) { t.nop = t.nop.Level(level) }
func (*testLogger) SetDebug(_ bool)                { /* no-op */ }

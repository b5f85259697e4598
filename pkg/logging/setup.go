// Copyright (c) 2025 Simon Lapacek
// SPDX-License-Identifier: MIT

package logging

import (
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

const (
	DEFAULT = 0
	VERBOSE = 1
	DEBUG   = 2
)

// atomicLevel backs every logger built here so verbosity can change after
// the controller-runtime delegation is fulfilled.
var atomicLevel = uberzap.NewAtomicLevelAt(zapcore.InfoLevel)

// InitLogging installs the process logger. An explicit --zap-log-level
// (levelSet) wins over verbosity.
func InitLogging(opts *zap.Options, verbosity int, levelSet bool) {
	if !levelSet {
		atomicLevel.SetLevel(zapcore.Level(int8(-verbosity)))
	} else if opts.Level != nil {
		switch lvl := opts.Level.(type) {
		case uberzap.AtomicLevel:
			atomicLevel.SetLevel(lvl.Level())
		case zapcore.Level:
			atomicLevel.SetLevel(lvl)
		}
	}
	opts.Level = atomicLevel

	logger := zap.New(zap.UseFlagOptions(opts), zap.RawZapOpts(uberzap.AddCaller()))
	ctrl.SetLogger(logger)
}

// SetVerbosity adjusts the level of every logger created by InitLogging.
func SetVerbosity(verbosity int) {
	atomicLevel.SetLevel(zapcore.Level(int8(-verbosity)))
}

func Verbosity() int {
	return -int(atomicLevel.Level())
}

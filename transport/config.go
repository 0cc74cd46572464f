// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"net"
	"time"

	sf "github.com/bassosimone/streamfactory"

	"github.com/bassosimone/errclass"
)

// Config holds common configuration for transport operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [errclass.New] wrapped as an [sf.ErrClassifierFunc].
	ErrClassifier sf.ErrClassifier

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:        &net.Dialer{},
		ErrClassifier: sf.ErrClassifierFunc(errclass.New),
		TimeNow:       time.Now,
	}
}

// SPDX-License-Identifier: GPL-3.0-or-later

package streamfactory

import "fmt"

// Origin identifies a destination after host-mapping rules have been
// applied. Two origins are equal iff all three fields match exactly.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// String returns a human-readable "scheme://host:port" representation,
// useful for log fields.
func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%d", o.Scheme, o.Host, o.Port)
}

// Package chaintypes defines the data model shared across the consensus
// core: node addresses, transactions, blocks, signatures and skeletons.
package chaintypes

import "fmt"

// Address identifies a node by its reachable host and port. It is a
// comparable struct so it can be used directly as a map key, matching the
// spec's requirement that Address serve as the public-key registry's key.
type Address struct {
	Host string
	Port int
}

// String renders the address in host:port form, used when dialing or
// listening and in log fields.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// IsZero reports whether a has never been assigned a host.
func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

package walletgw

import (
	"fmt"
	"sync"
)

// Driver is a named constructor for a concrete Gateway. The Liquid wallet
// itself is deliberately out of scope for this repository (it is treated
// as an opaque collaborator); a real deployment registers one driver,
// typically backed by an Electrum-protocol connection to electrum.url and
// unlocked with wallet.mnemonic, via a blank import of its package,
// mirroring how database/sql drivers register themselves.
type Driver struct {
	Name string
	New  func(args map[string]string) (Gateway, error)
}

var (
	driversMu sync.Mutex
	drivers   = make(map[string]*Driver)
)

// Register adds a Driver to the registry. Panics on a duplicate name,
// matching database/sql.Register's contract; this only ever happens at
// package init time, never on a request path.
func Register(d *Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[d.Name]; ok {
		panic(fmt.Sprintf("walletgw: driver %q already registered", d.Name))
	}
	drivers[d.Name] = d
}

// Open constructs a Gateway from the named, previously-registered driver.
func Open(name string, args map[string]string) (Gateway, error) {
	driversMu.Lock()
	d, ok := drivers[name]
	driversMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("walletgw: no driver registered with name %q (supported: %v)", name, Supported())
	}
	return d.New(args)
}

// Supported lists every currently-registered driver name.
func Supported() []string {
	driversMu.Lock()
	defer driversMu.Unlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}

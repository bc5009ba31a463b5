package sqladapter

import (
	"database/sql/driver"
	"sync"
)

// registered drivers, keyed by name, the same registry shape
// database/sql itself uses.
var (
	driversMu sync.RWMutex
	drivers   = make(map[string]driver.DriverContext)
)

// RegisterDriver registers a database/sql/driver.DriverContext under name,
// making it available to Open. Typically called from a driver package's
// init function.
func RegisterDriver(name string, d driver.DriverContext) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

package node

import (
	"github.com/michcald/foxgeig/logger"
)

// DefaultSensorID is used when no valid identity has been persisted.
const DefaultSensorID byte = 3

// ValidIdentity reports whether check is the one's complement of id.
func ValidIdentity(id, check byte) bool {
	return id^0xFF == check
}

// ResolveSensorID returns the persisted sensor id if the store holds a valid
// one, def otherwise. A failing or missing store is not an error.
func ResolveSensorID(store IdentityStore, def byte) byte {
	if store == nil {
		return def
	}
	id, check, err := store.ReadIdentity()
	if err != nil {
		logger.Debug("No persisted sensor id: " + err.Error())
		return def
	}
	if !ValidIdentity(id, check) {
		return def
	}
	return id
}

package model

// Status is the operational status of an EVSE or the aggregate status of a
// station, pool, operator or network.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusAvailable    Status = "available"
	StatusReserved     Status = "reserved"
	StatusCharging     Status = "charging"
	StatusOutOfService Status = "out_of_service"
	StatusOffline      Status = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUnknown, StatusAvailable, StatusReserved, StatusCharging, StatusOutOfService, StatusOffline:
		return true
	}
	return false
}

// AdminStatus is the administrative status set by the operator.
type AdminStatus string

const (
	AdminUnknown      AdminStatus = "unknown"
	AdminOperational  AdminStatus = "operational"
	AdminOutOfService AdminStatus = "out_of_service"
	AdminBlocked      AdminStatus = "blocked"
)

// Valid reports whether s is one of the known admin statuses.
func (s AdminStatus) Valid() bool {
	switch s {
	case AdminUnknown, AdminOperational, AdminOutOfService, AdminBlocked:
		return true
	}
	return false
}

// Usable reports whether the admin status allows new reservations or sessions.
func (s AdminStatus) Usable() bool {
	return s != AdminOutOfService && s != AdminBlocked
}

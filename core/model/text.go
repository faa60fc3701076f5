package model

import "fmt"

func (k EntityKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Level) UnmarshalText(b []byte) error {
	v, ok := ParseLevel(string(b))
	if !ok {
		return fmt.Errorf("unknown level %q", b)
	}
	*l = v
	return nil
}

func (r CancelReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *CancelReason) UnmarshalText(b []byte) error {
	switch string(b) {
	case "deleted", "":
		*r = CancelDeleted
	case "aborted":
		*r = CancelAborted
	case "expired":
		*r = CancelExpired
	default:
		return fmt.Errorf("unknown cancel reason %q", b)
	}
	return nil
}

func (h ReservationHandling) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *ReservationHandling) UnmarshalText(b []byte) error {
	switch string(b) {
	case "close", "":
		*h = ReservationClose
	case "keep_alive":
		*h = ReservationKeepAlive
	default:
		return fmt.Errorf("unknown reservation handling %q", b)
	}
	return nil
}

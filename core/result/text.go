package result

import (
	"fmt"
	"slices"
)

func parse(names []string, kind string, b []byte) (int, error) {
	i := slices.Index(names, string(b))
	if i < 0 {
		return 0, fmt.Errorf("unknown %s result %q", kind, b)
	}
	return i, nil
}

func (t *ReservationType) UnmarshalText(b []byte) error {
	i, err := parse(reservationNames, "reservation", b)
	*t = ReservationType(i)
	return err
}

func (t *CancelReservationType) UnmarshalText(b []byte) error {
	i, err := parse(cancelNames, "cancel", b)
	*t = CancelReservationType(i)
	return err
}

func (t *RemoteStartType) UnmarshalText(b []byte) error {
	i, err := parse(startNames, "remote start", b)
	*t = RemoteStartType(i)
	return err
}

func (t *RemoteStopType) UnmarshalText(b []byte) error {
	i, err := parse(stopNames, "remote stop", b)
	*t = RemoteStopType(i)
	return err
}

func (t *AuthType) UnmarshalText(b []byte) error {
	i, err := parse(authNames, "authorization", b)
	*t = AuthType(i)
	return err
}

func (t *SendCDRType) UnmarshalText(b []byte) error {
	i, err := parse(cdrNames, "charge detail record", b)
	*t = SendCDRType(i)
	return err
}

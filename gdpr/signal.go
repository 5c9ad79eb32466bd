package gdpr

import (
	"github.com/prebid/prebid-auction/errortypes"
)

// Signal is the regs.gdpr flag of a request. A request which does not carry it is ambiguous until
// the host default is applied.
type Signal int

const (
	SignalAmbiguous Signal = -1
	SignalNo        Signal = 0
	SignalYes       Signal = 1
)

var errInvalidSignal = &errortypes.BadInput{Message: "GDPR signal should be integer 0 or 1"}

func SignalParse(rawSignal string) (Signal, error) {
	switch rawSignal {
	case "":
		return SignalAmbiguous, nil
	case "0":
		return SignalNo, nil
	case "1":
		return SignalYes, nil
	}
	return SignalAmbiguous, errInvalidSignal
}

// SignalNormalize resolves an ambiguous signal with the host default. Anything but "0" means yes.
func SignalNormalize(signal Signal, gdprDefaultValue string) Signal {
	switch {
	case signal != SignalAmbiguous:
		return signal
	case gdprDefaultValue == "0":
		return SignalNo
	default:
		return SignalYes
	}
}

package dlna

import (
	"errors"

	"github.com/anacrolix/dms/upnp"
)

// Sentinel errors an action handler returns; toUPnPError maps each to a
// UPnP error code rather than every handler building an upnp.Error itself.
var (
	errNotAuthorized   = errors.New("dlna: caller is not the active client")
	errNotAuthorizedRC = errors.New("dlna: caller is not the active client (rendering control)")
	errInvalidArgs     = errors.New("dlna: invalid action arguments")
	errSeekOutOfRange  = errors.New("dlna: seek target out of range")
	errNoContents      = errors.New("dlna: no current URI set")
	errUnknownDevice   = errors.New("dlna: unknown device id")
)

// toUPnPError converts a sentinel (or any other error) to the UPnP SOAP
// fault code the action dispatcher sends back.
func toUPnPError(err error) *upnp.Error {
	switch {
	case errors.Is(err, errNotAuthorized):
		return upnp.Errorf(701, "transition not available")
	case errors.Is(err, errNotAuthorizedRC):
		return upnp.Errorf(402, "invalid args")
	case errors.Is(err, errInvalidArgs):
		return upnp.Errorf(402, "invalid args")
	case errors.Is(err, errSeekOutOfRange):
		return upnp.Errorf(714, "illegal seek target")
	case errors.Is(err, errNoContents):
		return upnp.Errorf(701, "transition not available")
	case errors.Is(err, errUnknownDevice):
		return upnp.Errorf(upnp.InvalidActionErrorCode, "unknown device")
	default:
		return upnp.ConvertError(err)
	}
}

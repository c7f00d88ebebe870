package upnp

import "fmt"

// UPnP control error codes that are part of the wire contract.
const (
	ErrorCodeInvalidAction        uint32 = 401
	ErrorCodeInvalidArgs          uint32 = 402
	ErrorCodeActionFailed         uint32 = 501
	ErrorCodeArgumentValueInvalid uint32 = 600
)

const (
	DescriptionInvalidAction       = "Invalid Action"
	DescriptionInvalidArgs         = "Invalid Args"
	DescriptionActionFailed        = "Action Failed"
	DescriptionInvalidServerResult = "Invalid server result"
)

// Error is a UPnP error as carried in the UPnPError detail of a SOAP
// fault. Action implementations return it to signal a domain error that
// is relayed to the caller verbatim.
type Error struct {
	Code        uint32
	Description string
}

func NewError(code uint32, description string) *Error {
	return &Error{Code: code, Description: description}
}

func (e *Error) Error() string {
	if e == nil {
		return "upnp error <nil>"
	}
	return fmt.Sprintf("upnp error %d: %s", e.Code, e.Description)
}

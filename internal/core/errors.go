package core

import "fmt"

// NetworkError reports a failed backend call. Status is the HTTP status
// code, zero when the request never got a response.
type NetworkError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DeviceError reports a microphone acquisition failure: permission
// denied or device unavailable.
type DeviceError struct {
	Reason string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("device: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("device: %s", e.Reason)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// TransportError reports a room connection failure. Stage names the
// phase the connection was in when it broke.
type TransportError struct {
	Stage string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

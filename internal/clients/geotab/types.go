package geotab

// Credentials is the session returned by Authenticate and echoed back on
// every subsequent call.
type Credentials struct {
	UserName  string `json:"userName"`
	Database  string `json:"database"`
	SessionID string `json:"sessionId"`
}

// Device is a vehicle registered with the telemetry provider
type Device struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	LicensePlate string  `json:"licensePlate"`
	Groups       []Group `json:"groups"`
}

// Group is a device group reference
type Group struct {
	ID string `json:"id"`
}

// InGroup reports whether the device belongs to the given group
func (d Device) InGroup(groupID string) bool {
	for _, g := range d.Groups {
		if g.ID == groupID {
			return true
		}
	}
	return false
}

// logRecord is one raw GPS sample from the provider's LogRecord feed
type logRecord struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	DateTime  string  `json:"dateTime"`
}

// authenticateResult is the payload of a successful Authenticate call
type authenticateResult struct {
	Credentials Credentials `json:"credentials"`
	Path        string      `json:"path"`
}

// apiError is the provider's JSON-RPC error shape
type apiError struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

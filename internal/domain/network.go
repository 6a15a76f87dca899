package domain

// ConnectionType classifies the current connectivity
type ConnectionType int

const (
	ConnectionNone ConnectionType = iota
	ConnectionWifi
	ConnectionMobile
	ConnectionOther
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionWifi:
		return "wifi"
	case ConnectionMobile:
		return "mobile"
	case ConnectionOther:
		return "other"
	default:
		return "none"
	}
}

// MarshalText encodes the connection type as its name
func (c ConnectionType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// NetworkStateProvider exposes connectivity and the download policy
type NetworkStateProvider interface {
	ConnectionType() ConnectionType
	ShouldAllowDownload(wifiOnly bool) bool
}

// ShouldAllowDownload applies the download policy to a connection type
func ShouldAllowDownload(connection ConnectionType, wifiOnly bool) bool {
	if connection == ConnectionNone {
		return false
	}
	if wifiOnly {
		return connection == ConnectionWifi
	}
	return true
}

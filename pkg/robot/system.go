package robot

import "context"

// The system and utility queries return a nil result with a nil error when
// the robot answers 2xx with a body that does not decode as JSON, so callers
// must check the result as well as the error. Transport failures and non-2xx
// answers are errors.

// Battery is GET /api/system/battery.
type Battery struct {
	Level        int     `json:"level"`
	Scale        int     `json:"scale"`
	Percentage   float64 `json:"percentage"`
	Status       int     `json:"status"`
	Plugged      int     `json:"plugged"`
	Health       int     `json:"health"`
	TemperatureC float64 `json:"temperature_c"`
	VoltageMV    int     `json:"voltage_mv"`
	Present      bool    `json:"present"`
	Technology   *string `json:"technology"`
}

// DeviceInfo is GET /api/system/device.
type DeviceInfo struct {
	Manufacturer   string `json:"manufacturer"`
	Brand          string `json:"brand"`
	Model          string `json:"model"`
	Device         string `json:"device"`
	Product        string `json:"product"`
	Hardware       string `json:"hardware"`
	AndroidVersion string `json:"android_version"`
	SDKInt         int    `json:"sdk_int"`
}

// Connectivity is GET /api/system/connectivity.
type Connectivity struct {
	Connected bool   `json:"connected"`
	Type      string `json:"type"`
	Metered   bool   `json:"metered"`
}

// Memory is GET /api/system/memory.
type Memory struct {
	AvailMem  int64 `json:"avail_mem"`
	TotalMem  int64 `json:"total_mem"`
	LowMemory bool  `json:"low_memory"`
	Threshold int64 `json:"threshold"`
}

// Storage is GET /api/system/storage.
type Storage struct {
	TotalBytes     int64 `json:"total_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// Battery returns the battery status. It returns (nil, nil) when the body is not JSON.
func (c *Client) Battery(ctx context.Context) (*Battery, error) {
	return getJSON[Battery](ctx, c, "/api/system/battery")
}

// Device returns build information. It returns (nil, nil) when the body is not JSON.
func (c *Client) Device(ctx context.Context) (*DeviceInfo, error) {
	return getJSON[DeviceInfo](ctx, c, "/api/system/device")
}

// Connectivity returns network state. It returns (nil, nil) when the body is not JSON.
func (c *Client) Connectivity(ctx context.Context) (*Connectivity, error) {
	return getJSON[Connectivity](ctx, c, "/api/system/connectivity")
}

// Memory returns RAM usage. It returns (nil, nil) when the body is not JSON.
func (c *Client) Memory(ctx context.Context) (*Memory, error) {
	return getJSON[Memory](ctx, c, "/api/system/memory")
}

// Storage returns disk usage. It returns (nil, nil) when the body is not JSON.
func (c *Client) Storage(ctx context.Context) (*Storage, error) {
	return getJSON[Storage](ctx, c, "/api/system/storage")
}

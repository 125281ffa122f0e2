package telemetry

import (
	"os"
	"sync/atomic"

	"github.com/rs/xid"
)

var (
	instanceID    = xid.New().String()
	hostname      string
	configVersion atomic.Value
)

func init() {
	var err error
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	configVersion.Store("")
}

// InstanceID identifies this run; it is stamped on spans and logs.
func InstanceID() string {
	return instanceID
}

func Hostname() string {
	return hostname
}

// ConfigVersion is the fingerprint of the configuration last applied.
func ConfigVersion() string {
	return configVersion.Load().(string)
}

func SetConfigVersion(v string) {
	configVersion.Store(v)
}

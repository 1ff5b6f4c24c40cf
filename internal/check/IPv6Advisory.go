package check

import (
	"go.uber.org/zap"
)

// IPv6DisableKey is the sysctl hl-node needs set to 1: the node misbehaves
// when IPv6 is reachable.
const IPv6DisableKey = "net.ipv6.conf.all.disable_ipv6"

// SysctlReader reads a kernel parameter by dotted key.
type SysctlReader func(key string) (string, error)

// IPv6Advisory warns when IPv6 appears to be enabled. It never fails; an
// unreadable sysctl is logged at debug level and ignored. Returns true when
// the warning was emitted.
func IPv6Advisory(read SysctlReader, logger *zap.Logger) bool {
	value, err := read(IPv6DisableKey)
	if err != nil {
		logger.Debug("unable to read sysctl", zap.String("key", IPv6DisableKey), zap.Error(err))
		return false
	}
	if value != "0" {
		return false
	}
	logger.Warn("ipv6 appears to be enabled, node might not start up properly",
		zap.String("key", IPv6DisableKey),
		zap.String("value", value),
	)
	return true
}

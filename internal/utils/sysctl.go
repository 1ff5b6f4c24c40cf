package utils

import (
	"os"
	"path/filepath"
	"strings"
)

const procSysRoot = "/proc/sys"

// ReadSysctl reads a kernel parameter such as "net.ipv6.conf.all.disable_ipv6".
func ReadSysctl(key string) (string, error) {
	return ReadSysctlAt(procSysRoot, key)
}

// ReadSysctlAt reads key from a procfs-style tree rooted at root.
func ReadSysctlAt(root, key string) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(key, ".", "/")))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

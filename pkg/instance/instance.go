// Package instance names the running process in logs and lock owners.
package instance

import (
	"os"
	"strconv"
	"sync"
)

const (
	EnvInstanceID = "WILDROOTS_INSTANCE_ID"
	fallbackHost  = "local"
)

// ID is resolved once per process: WILDROOTS_INSTANCE_ID when set, otherwise
// hostname and pid, so two workers on one host stay distinguishable.
var ID = sync.OnceValue(func() string {
	return resolve(os.Getenv, os.Hostname, os.Getpid())
})

func resolve(getenv func(string) string, hostname func() (string, error), pid int) string {
	if id := getenv(EnvInstanceID); id != "" {
		return id
	}
	host, err := hostname()
	if err != nil || host == "" {
		host = fallbackHost
	}
	return host + "-" + strconv.Itoa(pid)
}

package instance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }
	host := func() (string, error) { return "worker-a", nil }

	assert.Equal(t, "worker-a-42", resolve(getenv, host, 42))

	env[EnvInstanceID] = "cron-1"
	assert.Equal(t, "cron-1", resolve(getenv, host, 42))

	delete(env, EnvInstanceID)
	noHost := func() (string, error) { return "", errors.New("no hostname") }
	assert.Equal(t, "local-7", resolve(getenv, noHost, 7))

	assert.Equal(t, ID(), ID())
}

package config

import (
	"strconv"
	"strings"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

type env struct {
	lookup LookupFunc
}

func (e env) get(key string) string {
	if e.lookup == nil {
		return ""
	}
	v, _ := e.lookup(key)
	return strings.TrimSpace(v)
}

// setString overrides *target when key is set to a non-blank value.
func (e env) setString(target *string, key string) {
	if v := e.get(key); v != "" {
		*target = v
	}
}

// setInt overrides *target when key holds a non-negative integer; bad values are ignored.
func (e env) setInt(target *int, key string) {
	v := e.get(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return
	}
	*target = n
}

func (e env) setBool(target *bool, key string) {
	v := e.get(key)
	if v == "" {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "t", "yes", "y", "on":
		*target = true
	case "0", "false", "f", "no", "n", "off":
		*target = false
	}
}

// Package runnerenv builds and serializes the child environment shared by
// the run-session mux (spec.md §4.3 step 3, which builds it) and the
// sandbox launcher (§4.4 step 7, which rebuilds it from RUNNER_ENV_JSON).
// Keeping the rules in one package is what makes "what the launcher execs
// with" and "what the mux decided" provably the same map.
package runnerenv

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// MaxKeyLen and MaxValueLen are the env-scrubbing bounds from spec.md §4.3
// step 3 / §8 ("Env scrubbing" invariant).
const (
	MaxKeyLen   = 128
	MaxValueLen = 16384
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Base returns the fixed safe environment base from spec.md §4.3 step 3 /
// §4.4 step 7's fallback, for the given resolved user name and home
// directory.
func Base(user, home string) map[string]string {
	return map[string]string{
		"PATH":    "/usr/bin:/bin",
		"HOME":    home,
		"USER":    user,
		"LOGNAME": user,
		"SHELL":   "/bin/sh",
		"TERM":    "xterm",
	}
}

// AcceptKey reports whether a request-supplied env key survives scrubbing.
func AcceptKey(key string) bool {
	return key != "" && len(key) <= MaxKeyLen && keyPattern.MatchString(key)
}

// AcceptValue reports whether a request-supplied env value survives
// scrubbing.
func AcceptValue(value string) bool {
	return len(value) <= MaxValueLen
}

// Build assembles the final child environment: base, plus
// CONTAINAI_AGENT_NAME/CONTAINAI_SESSION_ID when known, plus every entry
// of requested that survives AcceptKey/AcceptValue.
func Build(base map[string]string, agent, sessionID string, requested map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(requested)+2)
	for k, v := range base {
		out[k] = v
	}
	if agent != "" {
		out["CONTAINAI_AGENT_NAME"] = agent
	}
	if sessionID != "" {
		out["CONTAINAI_SESSION_ID"] = sessionID
	}
	for k, v := range requested {
		if AcceptKey(k) && AcceptValue(v) {
			out[k] = v
		}
	}
	return out
}

// Encode serializes env as the RUNNER_ENV_JSON payload.
func Encode(env map[string]string) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode RUNNER_ENV_JSON: %w", err)
	}
	return string(data), nil
}

// Decode parses a RUNNER_ENV_JSON payload.
func Decode(s string) (map[string]string, error) {
	var env map[string]string
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, fmt.Errorf("decode RUNNER_ENV_JSON: %w", err)
	}
	return env, nil
}

// Slice renders env as a sorted []string in "KEY=VALUE" form, suitable
// for exec.Cmd.Env or a clearenv+setenv loop.
func Slice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

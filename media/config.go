// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import "os"

// Configuration boundary keys (§6). The RTCP handler reads these to
// populate optional SDES items.
const (
	ConfigUserName  = "USER_NAME"
	ConfigUserEmail = "USER_EMAIL"
	ConfigUserPhone = "USER_PHONE"
	ConfigUserLoc   = "USER_LOC"
	ConfigUserNote  = "USER_NOTE"
)

// ConfigProvider is the external configuration boundary (§6): signaling or
// an interactive prompt layer, specified only by this interface and
// injected into the RTCP handler at construction.
type ConfigProvider interface {
	IsSet(key string) bool
	Get(key, prompt, def string) string
}

// EnvConfig is a ConfigProvider backed by RTPCONF_-prefixed environment
// variables, used by cmd/rtpconfd and as the default when no signaling
// layer supplies configuration.
type EnvConfig struct{}

func (EnvConfig) envName(key string) string {
	return "RTPCONF_" + key
}

func (c EnvConfig) IsSet(key string) bool {
	_, ok := os.LookupEnv(c.envName(key))
	return ok
}

func (c EnvConfig) Get(key, _ string, def string) string {
	if v, ok := os.LookupEnv(c.envName(key)); ok {
		return v
	}
	return def
}

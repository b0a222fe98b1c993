// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"time"

	"github.com/BurntSushi/toml"

	"code.hybscloud.com/gameconn"
)

// fileConfig is the on-disk shape of a gameserver config file. Loading
// configuration from disk is explicitly out of gameconn's own scope
// (SPEC_FULL.md §4.7); it lives only here, in the runnable command.
type fileConfig struct {
	Listen string `toml:"listen"`

	Login struct {
		Tries          int `toml:"tries"`
		RetryTimeoutMS int `toml:"retry_timeout_ms"`
		TimeoutMS      int `toml:"timeout_ms"`
	} `toml:"login"`

	Output struct {
		ForceCloseSlowConnections bool `toml:"force_close_slow_connections"`
		MaxQueueDepth             int  `toml:"max_queue_depth"`
	} `toml:"output"`
}

func defaultFileConfig() fileConfig {
	var fc fileConfig
	fc.Listen = "127.0.0.1:7171"
	fc.Login.Tries = 0
	fc.Login.RetryTimeoutMS = 5000
	fc.Login.TimeoutMS = 60000
	fc.Output.ForceCloseSlowConnections = false
	fc.Output.MaxQueueDepth = 500
	return fc
}

func loadFileConfig(path string) (fileConfig, error) {
	fc := defaultFileConfig()
	if path == "" {
		return fc, nil
	}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fileConfig{}, err
	}
	return fc, nil
}

func (fc fileConfig) toGameconnConfig() gameconn.Config {
	return gameconn.NewConfig(
		gameconn.WithLoginTries(fc.Login.Tries),
		gameconn.WithRetryTimeout(time.Duration(fc.Login.RetryTimeoutMS)*time.Millisecond),
		gameconn.WithLoginTimeout(time.Duration(fc.Login.TimeoutMS)*time.Millisecond),
		gameconn.WithForceCloseSlowConnection(fc.Output.ForceCloseSlowConnections),
		gameconn.WithMaxOutputQueueDepth(fc.Output.MaxQueueDepth),
	)
}

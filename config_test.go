// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gameconn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0, cfg.LoginTries)
	assert.Equal(t, 5*time.Second, cfg.RetryTimeout)
	assert.Equal(t, 60*time.Second, cfg.LoginTimeout)
	assert.False(t, cfg.ForceCloseSlowConnection)
	assert.Equal(t, 500, cfg.MaxOutputQueueDepth)
	assert.Equal(t, 50*time.Millisecond, cfg.SchedulerMinTick)
}

func TestNewConfigAppliesOptionsOverDefaults(t *testing.T) {
	cfg := NewConfig(
		WithLoginTries(5),
		WithRetryTimeout(2*time.Minute),
		WithLoginTimeout(10*time.Minute),
		WithForceCloseSlowConnection(true),
		WithMaxOutputQueueDepth(100),
		WithSchedulerMinTick(time.Second),
	)

	assert.Equal(t, 5, cfg.LoginTries)
	assert.Equal(t, 2*time.Minute, cfg.RetryTimeout)
	assert.Equal(t, 10*time.Minute, cfg.LoginTimeout)
	assert.True(t, cfg.ForceCloseSlowConnection)
	assert.Equal(t, 100, cfg.MaxOutputQueueDepth)
	assert.Equal(t, time.Second, cfg.SchedulerMinTick)
}

func TestNewConfigWithNoOptionsMatchesDefaults(t *testing.T) {
	assert.Equal(t, DefaultConfig(), NewConfig())
}

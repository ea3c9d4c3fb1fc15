package testlog

import (
	"testing"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/cictl/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logs.Infof("test=%s", t.Name())
}

package memory

import (
	"testing"

	"github.com/viant/warden/service/audit/audittest"
)

func TestLog(t *testing.T) {
	audittest.Run(t, New())
}

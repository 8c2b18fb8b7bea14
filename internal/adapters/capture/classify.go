package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"github.com/dkeye/Dial/internal/core"
)

// Classify maps a driver error onto the failure kinds the orchestrator reports.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{core.ErrPermissionDenied, core.ErrDeviceBusy, core.ErrDeviceUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, fs.ErrPermission), strings.Contains(msg, "permission denied"), strings.Contains(msg, "not allowed"):
		return fmt.Errorf("%w: %v", core.ErrPermissionDenied, err)
	case errors.Is(err, syscall.EBUSY), strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return fmt.Errorf("%w: %v", core.ErrDeviceBusy, err)
	}
	return fmt.Errorf("%w: %v", core.ErrDeviceUnavailable, err)
}

//go:build spinnaker

package spinnaker

import "github.com/pkg/errors"

func errNodef(format string, args ...interface{}) error {
	return errors.Errorf("spinnaker: "+format, args...)
}

// Package guard flips the application into test mode as soon as it is
// imported, so package tests never start real runtimes.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("OPALE_TEST_MODE") == "" {
			_ = os.Setenv("OPALE_TEST_MODE", "1")
		}
	})
}

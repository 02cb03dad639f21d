package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("TRADEWIND_TEST_MODE") == "" {
			_ = os.Setenv("TRADEWIND_TEST_MODE", "1")
		}
		// Port 0 keeps accidental renders from reaching a live converter.
		if os.Getenv("GOTENBERG_URL") == "" {
			_ = os.Setenv("GOTENBERG_URL", "http://127.0.0.1:0")
		}
	})
}

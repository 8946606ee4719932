package processor

import "fmt"

var errNoProcessFunc = fmt.Errorf("processor: no Process function configured")

func panicAsError(r any) error {
	return fmt.Errorf("processor panicked: %v", r)
}

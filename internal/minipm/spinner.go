package minipm

import (
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// watchStep runs a long external step in the background while a spinner polls
// its liveness in the foreground. The spinner is presentational only: its own
// errors are discarded and only the step's result decides success or failure.
func watchStep(desc string, run func() error) error {
	if !wantSpinner {
		return run()
	}

	done := make(chan error, 1)
	go func() {
		done <- run()
	}()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			_ = bar.Finish()
			return err
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}

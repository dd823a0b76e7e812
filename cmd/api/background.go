package main

// background runs fn on its own goroutine, turning a panic into a log line
// instead of a dead process. Used for best-effort work like confirmation
// emails that must never fail the request.
func (app *application) background(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				app.logger.Errorw("background task panicked", "panic", r)
			}
		}()

		fn()
	}()
}

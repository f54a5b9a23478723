package main

// IterationCounter sends an incrementing int64 on its channel, stopping
// when it has generated maxcount values or when stop is closed.
// If maxcount is 0, it will run until stop is closed.
// It returns true if it stopped because of stop, false otherwise.
func IterationCounter(log Logger, maxcount int64, output chan int64, stop chan struct{}) bool {
	var count int64

	defer func() {
		log.Info("iteration counter exiting after %d iterations\n", count)
	}()

	for {
		if maxcount > 0 && count >= maxcount {
			return false
		}
		select {
		case <-stop:
			return true
		case output <- count + 1:
			count++
		}
	}
}

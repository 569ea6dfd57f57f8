package app

// Retry runs f again on failure, up to retries additional attempts.
func Retry(f func() error, retries int) error {
	if err := f(); err != nil {
		if retries == 0 {
			return err
		}
		return Retry(f, retries-1)
	}
	return nil
}

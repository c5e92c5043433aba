package mediacache

// Close stops the service.
//
// Running fetches are cancelled and awaited, the cache is purged and a blob
// store opened by the service is closed. Streams still open afterwards fail
// on their next blob read.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.driver.Wait()
	purged := s.cache.Purge()

	var firstErr error
	if s.closer != nil {
		if err := s.closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.closer = nil
	}

	s.logger.Info("service closed", "purged_entries", purged)
	return firstErr
}

package dedupe

// Option applies a configuration option to the in-memory deduper.
type Option func(*seqDeduper)

// WithMaxSize sets how many sequence numbers are remembered.
// maxSize <= 0 keeps every sequence number.
func WithMaxSize(maxSize int) Option {
	return func(d *seqDeduper) {
		d.maxSize = maxSize
	}
}

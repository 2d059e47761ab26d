package confloader

import "errors"

// ErrReadBytesNotSupported is returned when ReadBytes is called on the
// map provider.
var ErrReadBytesNotSupported = errors.New("confloader: map provider has no byte form, use Read")

// mapProvider feeds a plain map of dotted keys into koanf. koanf probes
// Read when ReadBytes reports no byte representation.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}

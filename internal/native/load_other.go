//go:build !darwin && !linux

package native

func load(string) (*functions, func() error, error) {
	return nil, nil, ErrUnsupported
}

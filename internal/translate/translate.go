package translate

import (
	"context"
	"errors"
)

var (
	ErrEmptyResponse = errors.New("translation response carried no text")
	ErrUpstream      = errors.New("translation upstream error")
)

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Same reports whether a request needs no translation.
func Same(source, target string) bool {
	return source == "" || target == "" || source == target
}

package stomp

import "livon-client/internal/core/domain"

func codeOf(err error) (string, bool) {
	c, ok := domain.CodeOf(err)
	return string(c), ok
}

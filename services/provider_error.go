package services

import (
	"errors"
	"fmt"
)

// ProviderError giữ nguyên code/message của dịch vụ bên ngoài (Kie, ElevenLabs, Groq...)
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Status   int
}

func (e *ProviderError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: (%s) %s", e.Provider, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	default:
		return e.Provider + ": request failed"
	}
}

func IsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

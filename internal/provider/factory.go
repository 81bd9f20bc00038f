package provider

import (
	"context"
	"fmt"
)

// Factory creates an LLMProvider from a provider name and API key.
// Implemented in cmd wiring; declared here so packages can depend on the
// signature without importing the concrete clients.
type Factory func(ctx context.Context, name, apiKey string) (LLMProvider, error)

// ErrUnknownProvider is wrapped into factory errors for unmatched names.
var ErrUnknownProvider = fmt.Errorf("unknown provider")

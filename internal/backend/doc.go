// Package backend defines the text-generation Backend interface and
// the provider adapters implementing it (OpenAI, Anthropic, Gemini,
// and a scriptable mock). Adapters resolve credentials from the
// environment, apply client-side rate limiting, and classify provider
// failures as retryable or permanent for the retry layer.
package backend

// Package llmfactory creates chat models from the providers configuration,
// supporting OpenAI, Azure OpenAI, OpenAI compatible servers and Anthropic.
package llmfactory

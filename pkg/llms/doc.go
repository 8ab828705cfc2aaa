// Package llms is the provider neutral boundary to chat models.
//
// A Model receives the conversation as a list of Messages and the tool
// definitions in CallOptions, and returns a ContentResponse with either
// text content or tool calls. Provider implementations live in subpackages.
package llms

// Package chat provides the librarian Assistant: a tool-calling chat loop
// over a chat model and the catalog tools Registry.
package chat

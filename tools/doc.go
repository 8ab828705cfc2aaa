// Package tools defines the tool contract exposed to chat models and other callers,
// the typed argument decoding, and the Registry that dispatches a tool name and
// its arguments to a tool, always returning a display string.
package tools

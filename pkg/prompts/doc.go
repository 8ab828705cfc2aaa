// Package prompts renders prompt templates in Jinja2 or Go template format.
package prompts

// Package api handles incoming HTTP requests, routing, request
// validation, and response formatting. It translates HTTP concerns
// into task engine operations and maps engine errors back to safe
// HTTP responses.
package api

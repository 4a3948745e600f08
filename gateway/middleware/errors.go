package middleware

import "net/http"

// ErrorWriter renders a rejection. Services plug in their own JSON envelope.
type ErrorWriter func(w http.ResponseWriter, status int, message string)

func plainError(w http.ResponseWriter, status int, message string) {
	http.Error(w, message, status)
}

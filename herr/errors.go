// Package herr adapts handlers that fail into logged redirects. The client
// only ever sees where it was sent, never why.
package herr

import (
	"log/slog"
	"net/http"
)

type Error struct {
	Error    error
	Desc     string
	Redirect string
}

type Wrap func(w http.ResponseWriter, r *http.Request) *Error

func (fn Wrap) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e := fn(w, r); e != nil {
		if e.Error != nil {
			slog.Error("Error in handler:", "desc", e.Desc, "error", e.Error, "path", r.URL.Path, "redirect", e.Redirect)
		} else {
			slog.Info("Handler redirected", "desc", e.Desc, "path", r.URL.Path, "redirect", e.Redirect)
		}
		http.Redirect(w, r, e.Redirect, http.StatusFound)
	}
}

func Redirect(err error, desc string, to string) *Error {
	return &Error{
		Error:    err,
		Desc:     desc,
		Redirect: to,
	}
}

func ToLogin(err error, desc string) *Error {
	return Redirect(err, desc, "/login")
}

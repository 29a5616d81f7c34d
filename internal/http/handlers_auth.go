package http

import (
	"errors"
	"net/http"
	"time"

	"expensewise/internal/auth"
	applog "expensewise/internal/log"
	"expensewise/internal/middleware/security"
)

const sessionCookieName = "ew_session"

// loadSession resolves the session cookie and stores the session in the
// request context. Unknown or expired tokens are treated as signed out.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(sessionCookieName); err == nil {
			if sess, ok := s.auth.CurrentUser(c.Value); ok {
				ctx := auth.WithSession(r.Context(), sess)
				logger := applog.FromContext(ctx).With(applog.FieldUserID, sess.UserID)
				ctx = applog.NewContext(ctx, logger)
				r = r.WithContext(ctx)
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requirePage gates a page or partial on a signed-in user.
func (s *Server) requirePage(next http.HandlerFunc) http.HandlerFunc {
	guarded := security.NoStore(next)
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.UserID(r.Context()) == "" {
			if isHTMX(r) {
				NewHTMXResponse().Redirect("/login").Status(http.StatusUnauthorized).Write(w)
				return
			}
			if wantsJSON(r) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		guarded.ServeHTTP(w, r)
	}
}

// requireAPI gates a JSON endpoint on a signed-in user.
func (s *Server) requireAPI(next http.HandlerFunc) http.HandlerFunc {
	guarded := security.NoStore(next)
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.UserID(r.Context()) == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		guarded.ServeHTTP(w, r)
	}
}

// authRoute sends signed-in users away from the login and signup pages.
func (s *Server) authRoute(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.UserID(r.Context()) != "" {
			redirect(w, r, "/dashboard")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "login.html", newPage(r, "Log in"), http.StatusOK)
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "signup.html", newPage(r, "Sign up"), http.StatusOK)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email, password, ok := s.credentials(w, r, "login.html", "Log in")
	if !ok {
		return
	}

	sess, err := s.auth.Login(r.Context(), email, password)
	if err != nil {
		status, msg := http.StatusUnauthorized, "Invalid email or password."
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Login failed",
				applog.FieldError, err,
				applog.FieldComponent, applog.ComponentAuth)
			status, msg = http.StatusInternalServerError, msgSomethingFailed
		}
		s.renderAuthForm(w, r, "login.html", "Log in", email, msg, status)
		return
	}

	s.setSessionCookie(w, sess)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "User logged in",
		applog.FieldUserID, sess.UserID,
		applog.FieldComponent, applog.ComponentAuth)
	redirect(w, r, "/dashboard")
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	email, password, ok := s.credentials(w, r, "signup.html", "Sign up")
	if !ok {
		return
	}

	sess, err := s.auth.SignUp(r.Context(), email, password)
	if err != nil {
		status := http.StatusUnprocessableEntity
		var msg string
		switch {
		case errors.Is(err, auth.ErrInvalidEmail):
			msg = "Please enter a valid email address."
		case errors.Is(err, auth.ErrWeakPassword):
			msg = "Password must be at least 6 characters."
		case errors.Is(err, auth.ErrEmailTaken):
			status, msg = http.StatusConflict, "An account with this email already exists."
		default:
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Sign up failed",
				applog.FieldError, err,
				applog.FieldComponent, applog.ComponentAuth)
			status, msg = http.StatusInternalServerError, msgSomethingFailed
		}
		s.renderAuthForm(w, r, "signup.html", "Sign up", email, msg, status)
		return
	}

	s.setSessionCookie(w, sess)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "User signed up",
		applog.FieldUserID, sess.UserID,
		applog.FieldComponent, applog.ComponentAuth)
	redirect(w, r, "/dashboard")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		s.auth.Logout(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	redirect(w, r, "/login")
}

// credentials reads the email and password fields, rendering the form again
// when the body cannot be parsed.
func (s *Server) credentials(w http.ResponseWriter, r *http.Request, tmpl, title string) (string, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.renderAuthForm(w, r, tmpl, title, "", msgInvalidRequest, http.StatusBadRequest)
		return "", "", false
	}
	return sanitizeInput(r.PostForm.Get("email")), r.PostForm.Get("password"), true
}

func (s *Server) renderAuthForm(w http.ResponseWriter, r *http.Request, tmpl, title, email, msg string, status int) {
	p := newPage(r, title)
	p.Flash = msg
	p.Form = map[string]string{"email": email}
	s.render(w, r, tmpl, p, status)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

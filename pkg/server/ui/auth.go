package ui

import (
	"net/http"
	"strings"
	"time"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/aegisid/aegisid/pkg/identity"
)

const tokenCookieName = "aegis_token"

// requireOperator authenticates dashboard requests. The operator token
// issued by POST /authn lives in a cookie; the bridge copies it into the
// Authorization header so the API's token check applies unchanged.
// Browsers without a valid token land on the login page.
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if cookie, err := r.Cookie(tokenCookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
				r.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cookie.Value))
			}
		}

		op, err := h.auth.Verify(r)
		if err != nil {
			http.Redirect(w, r, "/ui/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.Set(r.Context(), op)))
	})
}

// LoginPage renders the token entry form.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, http.StatusOK, loginPage(strings.TrimSpace(r.URL.Query().Get("error"))))
}

// LoginSubmit stores the pasted operator token in a cookie and opens the
// dashboard. The token is validated on the next page load, not here.
func (h *Handler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/ui/login?error=invalid+form", http.StatusSeeOther)
		return
	}
	token := strings.TrimSpace(r.Form.Get("token"))
	if token == "" {
		http.Redirect(w, r, "/ui/login?error=token+is+required", http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(h.Config.TokenTTL()),
	})
	http.Redirect(w, r, "/ui", http.StatusSeeOther)
}

// Logout clears the token cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/ui/login", http.StatusSeeOther)
}

func loginPage(errMsg string) gomponents.Node {
	content := []gomponents.Node{
		html.H1(gomponents.Text("AegisID")),
		html.P(html.Class("muted"), gomponents.Text("Paste an operator token to open the dashboard. Tokens come from POST /authn/{login}/authenticate.")),
		html.Form(
			html.Method("post"),
			html.Action("/ui/login"),
			html.Label(gomponents.Text("Operator token")),
			html.Textarea(
				html.Name("token"),
				html.Placeholder("Paste token here"),
				html.Required(),
			),
			html.Button(html.Type("submit"), gomponents.Text("Sign In")),
		),
	}
	if errMsg != "" {
		content = append([]gomponents.Node{
			html.P(html.Class("error-text"), gomponents.Text("Error: "+errMsg)),
		}, content...)
	}

	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text("Sign in | AegisID")),
			html.Link(html.Rel("stylesheet"), html.Href("/ui/static/app.css")),
		),
		html.Body(
			html.Class("login-body"),
			html.Main(html.Class("login-wrap"), html.Div(html.Class("card"), gomponents.Group(content))),
		),
	)
}

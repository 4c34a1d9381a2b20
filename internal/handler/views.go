package handler

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

// credentialView feeds the login/register form template.  The SPA frontend
// never sees these pages; they exist for the browser-facing half of the
// authorization-code flow and for the plain cookie login.
type credentialView struct {
	Title        string
	Action       string // form post target, query string included
	Register     bool   // render the username field
	SwitchHref   string // link to the opposite view
	SwitchLabel  string
	ErrorMessage string
}

var credentialFormTmpl = template.Must(template.New("credential-form").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { font-family: sans-serif; display: flex; justify-content: center; margin-top: 10vh; }
    form { display: flex; flex-direction: column; gap: .75rem; min-width: 20rem; }
    input { padding: .5rem; }
    button { padding: .5rem; cursor: pointer; }
    .error { color: #b00020; }
  </style>
</head>
<body>
  <form method="post" action="{{.Action}}">
    <h1>{{.Title}}</h1>
    {{- if .ErrorMessage}}
    <p class="error">{{.ErrorMessage}}</p>
    {{- end}}
    {{- if .Register}}
    <input type="text" name="username" placeholder="Username" required>
    {{- end}}
    <input type="email" name="email" placeholder="Email" required>
    <input type="password" name="password" placeholder="Password" required>
    <button type="submit">{{.Title}}</button>
    <a href="{{.SwitchHref}}">{{.SwitchLabel}}</a>
  </form>
</body>
</html>
`))

// renderCredentialForm writes the form with HTTP 200.  Failed submissions
// re-render the same form with an inline message instead of an error status,
// so browser navigation never lands on a bare error page.
func renderCredentialForm(c echo.Context, view credentialView) error {
	var buf bytes.Buffer
	if err := credentialFormTmpl.Execute(&buf, view); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "render failed"})
	}
	return c.HTML(http.StatusOK, buf.String())
}

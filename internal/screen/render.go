package screen

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/screen.html"))

// Render writes the screen as an HTML page. All text is escaped by html/template.
func Render(w io.Writer, s Screen) error {
	return pageTemplate.ExecuteTemplate(w, "screen.html", s)
}

package main

import _ "embed"

// Dashboard assets compiled into the binary. The HTML and SVG files are
// html/template sources; the CSS and JS are served as-is.
var (
	//go:embed web/index.html
	indexHTML string

	//go:embed web/login.html
	loginHTML string

	//go:embed web/favicon.svg
	faviconSVG string

	//go:embed web/style.css
	styleCSS string

	//go:embed web/app.js
	appJS string
)

package server

// ANSI colours for the development route listing.
const (
	Green      = "\033[32m"
	Blue       = "\033[34m"
	Cyan       = "\033[36m"
	Yellow     = "\033[33m"
	Magenta    = "\033[35m"
	Gray       = "\033[90m"
	ResetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":     Green,
	"POST":    Blue,
	"PUT":     Cyan,
	"DELETE":  Yellow,
	"PATCH":   Magenta,
	"OPTIONS": Gray,
}

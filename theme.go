package phototag

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values, so the app
// automatically matches any color scheme. A negative index means no color.
type Theme struct {
	Title   int // Image titles
	Keyword int // Keyword list
	Error   int // Error messages
	Success int // Completion summary
	Muted   int // Status bar, descriptions
	Accent  int // Progress bar, spinner
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		Title:   4,
		Keyword: 3,
		Error:   1,
		Success: 2,
		Muted:   8,
		Accent:  5,
	}
}

package domain

// Theme is the resolved color scheme for one widget instance.
// It is passed explicitly to whatever renders the widget.
type Theme struct {
	Primary    string `json:"primary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
}

// WidgetConfig is resolved once from the embedding context and never changes afterwards.
type WidgetConfig struct {
	TenantID     string `json:"tenant_id"`
	WidgetID     string `json:"widget_id"`
	PrimaryColor string `json:"primary_color"`
	AccentColor  string `json:"accent_color"`
	Bare         bool   `json:"bare"`
}

// Theme derives the theme for this configuration.
// Bare mode drops the background so the host container shows through.
func (c WidgetConfig) Theme() Theme {
	bg := DefaultBackground
	if c.Bare {
		bg = "transparent"
	}
	return Theme{
		Primary:    c.PrimaryColor,
		Accent:     c.AccentColor,
		Background: bg,
	}
}

package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Widget positions.
const (
	PositionBottomRight = "bottom-right"
	PositionBottomLeft  = "bottom-left"
	PositionTopRight    = "top-right"
	PositionTopLeft     = "top-left"
)

// WidgetConfig is the appearance the embedded widget loads for an account.
// Blank fields mean "use the default"; see WithDefaults.
type WidgetConfig struct {
	PrimaryColor   string `json:"primary_color"   gorm:"type:varchar(7)"   example:"#667eea"`
	Position       string `json:"position"        gorm:"type:varchar(16)"  example:"bottom-right"`
	Title          string `json:"title"           gorm:"type:varchar(50)"  example:"AI Assistant"`
	Subtitle       string `json:"subtitle"        gorm:"type:varchar(100)" example:"Online, usually replies instantly"`
	WelcomeMessage string `json:"welcome_message" gorm:"type:varchar(200)" example:"Hi there! How can I help you today?"`
	Placeholder    string `json:"placeholder"     gorm:"type:varchar(50)"  example:"Type your message..."`
	// Branding shows the "powered by" footer. Nil means shown.
	Branding *bool `json:"branding"`
}

// DefaultWidgetConfig is served for unknown keys and fills blank fields.
func DefaultWidgetConfig() WidgetConfig {
	on := true
	return WidgetConfig{
		PrimaryColor:   "#667eea",
		Position:       PositionBottomRight,
		Title:          "AI Assistant",
		Subtitle:       "Online, usually replies instantly",
		WelcomeMessage: "Hi there! I'm your AI assistant. How can I help you today?",
		Placeholder:    "Type your message...",
		Branding:       &on,
	}
}

// WithDefaults returns w with every blank field taken from DefaultWidgetConfig.
func (w WidgetConfig) WithDefaults() WidgetConfig {
	d := DefaultWidgetConfig()
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	out := WidgetConfig{
		PrimaryColor:   pick(w.PrimaryColor, d.PrimaryColor),
		Position:       pick(w.Position, d.Position),
		Title:          pick(w.Title, d.Title),
		Subtitle:       pick(w.Subtitle, d.Subtitle),
		WelcomeMessage: pick(w.WelcomeMessage, d.WelcomeMessage),
		Placeholder:    pick(w.Placeholder, d.Placeholder),
		Branding:       d.Branding,
	}
	if w.Branding != nil {
		b := *w.Branding
		out.Branding = &b
	}
	return out
}

// WidgetConfigPatch is a partial update; nil fields are left unchanged.
type WidgetConfigPatch struct {
	PrimaryColor   *string `json:"primary_color,omitempty"`
	Position       *string `json:"position,omitempty"`
	Title          *string `json:"title,omitempty"`
	Subtitle       *string `json:"subtitle,omitempty"`
	WelcomeMessage *string `json:"welcome_message,omitempty"`
	Placeholder    *string `json:"placeholder,omitempty"`
	Branding       *bool   `json:"branding,omitempty"`
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

var widgetPositions = map[string]bool{
	PositionBottomRight: true,
	PositionBottomLeft:  true,
	PositionTopRight:    true,
	PositionTopLeft:     true,
}

// WidgetFieldError names the first patch field that failed validation.
type WidgetFieldError struct {
	Field  string
	Reason string
}

func (e *WidgetFieldError) Error() string { return e.Field + ": " + e.Reason }

// Apply validates p and returns w with the patch applied. Text fields are
// trimmed and must be 1..max runes; w is not modified on error.
func (p WidgetConfigPatch) Apply(w WidgetConfig) (WidgetConfig, error) {
	out := w
	if w.Branding != nil {
		b := *w.Branding
		out.Branding = &b
	}

	if p.PrimaryColor != nil {
		v := strings.TrimSpace(*p.PrimaryColor)
		if !hexColor.MatchString(v) {
			return w, &WidgetFieldError{"primary_color", "must be a hex color like #667eea"}
		}
		out.PrimaryColor = strings.ToLower(v)
	}
	if p.Position != nil {
		v := strings.TrimSpace(*p.Position)
		if !widgetPositions[v] {
			return w, &WidgetFieldError{"position", "must be bottom-right, bottom-left, top-right or top-left"}
		}
		out.Position = v
	}

	texts := []struct {
		field string
		in    *string
		max   int
		dst   *string
	}{
		{"title", p.Title, 50, &out.Title},
		{"subtitle", p.Subtitle, 100, &out.Subtitle},
		{"welcome_message", p.WelcomeMessage, 200, &out.WelcomeMessage},
		{"placeholder", p.Placeholder, 50, &out.Placeholder},
	}
	for _, t := range texts {
		if t.in == nil {
			continue
		}
		v := strings.TrimSpace(*t.in)
		if n := utf8.RuneCountInString(v); n == 0 || n > t.max {
			return w, &WidgetFieldError{t.field, "length out of range"}
		}
		*t.dst = v
	}

	if p.Branding != nil {
		b := *p.Branding
		out.Branding = &b
	}
	return out, nil
}

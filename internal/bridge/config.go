package bridge

import (
	"errors"
	"net/url"
	"strings"

	"github.com/xiaot623/gogo/widget/internal/domain"
)

// ErrMissingTenant means no layer supplied a tenant. The widget must not activate.
var ErrMissingTenant = errors.New("tenantId is required")

// ConfigErrorText is shown instead of the chat surface when the tenant is missing.
const ConfigErrorText = "Error: tenantId is required. Please add ?tenantId=YOUR_TENANT_ID to the URL."

// Frame URL query parameters.
const (
	ParamTenantID     = "tenantId"
	ParamWidgetID     = "widgetId"
	ParamPrimaryColor = "tenantPrimaryColor"
	ParamAccentColor  = "tenantAccentColor"
	ParamMode         = "mode"
)

// Script tag data attributes.
const (
	AttrTenantID     = "data-tenant-id"
	AttrWidgetID     = "data-widget-id"
	AttrPrimaryColor = "data-primary-color"
	AttrAccentColor  = "data-accent-color"
	AttrMode         = "data-mode"
)

// Global variable names.
const (
	GlobalTenantID     = "GOGO_TENANT_ID"
	GlobalWidgetID     = "GOGO_WIDGET_ID"
	GlobalPrimaryColor = "GOGO_PRIMARY_COLOR"
	GlobalAccentColor  = "GOGO_ACCENT_COLOR"
	GlobalMode         = "GOGO_MODE"
)

// Layer is one source of configuration values. Empty fields are unset.
type Layer struct {
	TenantID     string `yaml:"tenant_id"`
	WidgetID     string `yaml:"widget_id"`
	PrimaryColor string `yaml:"primary_color"`
	AccentColor  string `yaml:"accent_color"`
	Mode         string `yaml:"mode"`
}

// FromQuery reads explicit parameters.
func FromQuery(q url.Values) Layer {
	return Layer{
		TenantID:     q.Get(ParamTenantID),
		WidgetID:     q.Get(ParamWidgetID),
		PrimaryColor: q.Get(ParamPrimaryColor),
		AccentColor:  q.Get(ParamAccentColor),
		Mode:         q.Get(ParamMode),
	}
}

// FromScriptAttributes reads script tag data attributes.
func FromScriptAttributes(attrs map[string]string) Layer {
	return Layer{
		TenantID:     attrs[AttrTenantID],
		WidgetID:     attrs[AttrWidgetID],
		PrimaryColor: attrs[AttrPrimaryColor],
		AccentColor:  attrs[AttrAccentColor],
		Mode:         attrs[AttrMode],
	}
}

// FromGlobals reads global variables through lookup, e.g. os.Getenv.
func FromGlobals(lookup func(string) string) Layer {
	return Layer{
		TenantID:     lookup(GlobalTenantID),
		WidgetID:     lookup(GlobalWidgetID),
		PrimaryColor: lookup(GlobalPrimaryColor),
		AccentColor:  lookup(GlobalAccentColor),
		Mode:         lookup(GlobalMode),
	}
}

// Resolve merges layers field by field, earlier layers winning, then applies
// defaults. WidgetID falls back to the tenant. The returned config is usable
// for theming even when the error is ErrMissingTenant.
func Resolve(layers ...Layer) (domain.WidgetConfig, error) {
	pick := func(get func(Layer) string) string {
		for _, l := range layers {
			if v := strings.TrimSpace(get(l)); v != "" {
				return v
			}
		}
		return ""
	}

	cfg := domain.WidgetConfig{
		TenantID:     pick(func(l Layer) string { return l.TenantID }),
		WidgetID:     pick(func(l Layer) string { return l.WidgetID }),
		PrimaryColor: pick(func(l Layer) string { return l.PrimaryColor }),
		AccentColor:  pick(func(l Layer) string { return l.AccentColor }),
		Bare:         strings.EqualFold(pick(func(l Layer) string { return l.Mode }), domain.ModeBare),
	}
	if cfg.WidgetID == "" {
		cfg.WidgetID = cfg.TenantID
	}
	if cfg.PrimaryColor == "" {
		cfg.PrimaryColor = domain.DefaultPrimaryColor
	}
	if cfg.AccentColor == "" {
		cfg.AccentColor = domain.DefaultAccentColor
	}
	if cfg.TenantID == "" {
		return cfg, ErrMissingTenant
	}
	return cfg, nil
}

package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cwbudde/minimizeme/internal/opt"
	"github.com/cwbudde/minimizeme/internal/session"
	"github.com/cwbudde/minimizeme/internal/ui"
)

// parseSelection reads the control panel form. Missing fields keep the
// current session's values; the active set is exactly the checked boxes.
func parseSelection(form url.Values, cur *session.Session) (session.Selection, error) {
	sel := session.Selection{
		Function: cur.Function,
		Mode:     cur.Mode,
		Configs:  make(map[opt.Kind]opt.Config),
	}
	if v := strings.TrimSpace(form.Get(ui.FieldFunction)); v != "" {
		sel.Function = v
	}
	if v := form.Get(ui.FieldMode); v != "" {
		sel.Mode = session.RenderMode(v)
	}

	floats := []struct {
		name     string
		dst      *float64
		fallback float64
	}{
		{ui.FieldStartX, &sel.Start.X, cur.Start.X},
		{ui.FieldStartY, &sel.Start.Y, cur.Start.Y},
		{ui.FieldXMin, &sel.View.XMin, cur.View.XMin},
		{ui.FieldXMax, &sel.View.XMax, cur.View.XMax},
		{ui.FieldYMin, &sel.View.YMin, cur.View.YMin},
		{ui.FieldYMax, &sel.View.YMax, cur.View.YMax},
		{ui.FieldAzimuth, &sel.Azimuth, cur.Azimuth},
		{ui.FieldElevation, &sel.Elevation, cur.Elevation},
	}
	for _, f := range floats {
		v, err := floatField(form, f.name, f.fallback)
		if err != nil {
			return sel, err
		}
		*f.dst = v
	}

	for _, k := range opt.Kinds() {
		cfg, ok := cur.Configs[k]
		if !ok {
			cfg = opt.DefaultConfig(k)
		}
		for _, p := range opt.Params(k) {
			old, _ := cfg.Get(p.Key)
			name := ui.ParamField(k, p.Key)
			v, err := floatField(form, name, old)
			if err != nil {
				return sel, err
			}
			if err := cfg.Set(p.Key, v); err != nil {
				return sel, fmt.Errorf("%w: %s: %w", session.ErrInvalidSelection, name, err)
			}
		}
		sel.Configs[k] = cfg
	}

	for _, v := range form[ui.FieldActive] {
		sel.Active = append(sel.Active, opt.Kind(v))
	}
	return sel, nil
}

func floatField(form url.Values, name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(form.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a number", session.ErrInvalidSelection, name, raw)
	}
	return v, nil
}

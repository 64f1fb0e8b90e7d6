package schedule

import (
	"encoding/json"

	"github.com/sproutcare/sprout-api/services/reconcile"
)

// The upstream has shipped three envelope shapes for calendar payloads over
// time: a bare array, {"items": [...]} and {"data": {"items": [...]}}. All
// three remain live depending on API version, so the adapter accepts any of
// them. Shape detection happens here and nowhere else.

type rawTemplate struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	TargetAgeMonths *float64 `json:"targetAgeMonths"`
	TargetAgeWeeks  *int     `json:"targetAgeWeeks"`
	Notes           string   `json:"notes"`
}

type rawEnvelope struct {
	Items []json.RawMessage `json:"items"`
	Data  *rawEnvelope      `json:"data"`
}

type rawCountry struct {
	CountryID   string `json:"countryId"`
	CountryName string `json:"countryName"`
}

// ShapeTemplates flattens any of the documented calendar envelopes into
// normalized dose templates. Unrecognized payloads and entries without a
// name are dropped; it never errors.
func ShapeTemplates(raw json.RawMessage) []reconcile.DoseTemplate {
	templates := make([]reconcile.DoseTemplate, 0)

	for _, item := range flattenItems(raw) {
		var rt rawTemplate
		if err := json.Unmarshal(item, &rt); err != nil {
			continue
		}

		if rt.Name == "" {
			continue
		}

		templates = append(templates, normalizeTemplate(rt))
	}

	return templates
}

// ShapeCountries extracts the country listing from the schedules payload.
func ShapeCountries(raw json.RawMessage) []Country {
	countries := make([]Country, 0)

	for _, item := range flattenItems(raw) {
		var rc rawCountry
		if err := json.Unmarshal(item, &rc); err != nil {
			continue
		}

		if rc.CountryID == "" {
			continue
		}

		countries = append(countries, Country{
			ID:   rc.CountryID,
			Name: rc.CountryName,
		})
	}

	return countries
}

func flattenItems(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	// Bare array
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}

	// {items: [...]} or {data: {items: [...]}}
	var envelope rawEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}

	if len(envelope.Items) > 0 {
		return envelope.Items
	}

	if envelope.Data != nil {
		return envelope.Data.Items
	}

	return nil
}

// normalizeTemplate enforces the exactly-one-age rule. Weeks are NOT
// converted to months - downstream projection math differs per unit - but a
// template claiming both keeps months and drops weeks, and one claiming
// neither defaults to newborn (0 months).
func normalizeTemplate(rt rawTemplate) reconcile.DoseTemplate {
	tmpl := reconcile.DoseTemplate{
		ID:    rt.ID,
		Name:  rt.Name,
		Notes: rt.Notes,
	}

	switch {
	case rt.TargetAgeMonths != nil:
		tmpl.TargetAgeMonths = rt.TargetAgeMonths
	case rt.TargetAgeWeeks != nil:
		tmpl.TargetAgeWeeks = rt.TargetAgeWeeks
	default:
		zero := float64(0)
		tmpl.TargetAgeMonths = &zero
	}

	return tmpl
}
